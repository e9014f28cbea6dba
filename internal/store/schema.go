package store

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table names.
const (
	TableItems          = "items"
	TableScheduleStates = "schedule_states"
	TableSessions       = "sessions"
	TableAnswers        = "answers"
	TableSyncRecords    = "sync_records"
	TableGlobalSequence = "global_sequence"
)

var (
	// ItemsColumns holds the columns for the "items" table.
	ItemsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "content_type", Type: field.TypeString},
		{Name: "prompt", Type: field.TypeString},
		{Name: "answer", Type: field.TypeString},
		{Name: "alternatives", Type: field.TypeJSON},
		{Name: "difficulty", Type: field.TypeFloat64},
		{Name: "tags", Type: field.TypeJSON},
		{Name: "modes", Type: field.TypeJSON},
		{Name: "preferred_mode", Type: field.TypeString},
		{Name: "updated_at", Type: field.TypeInt64},
	}
	// ItemsTable holds the schema information for the "items" table.
	ItemsTable = &schema.Table{
		Name:       TableItems,
		Columns:    ItemsColumns,
		PrimaryKey: []*schema.Column{ItemsColumns[0]},
	}

	// ScheduleStatesColumns holds the columns for the "schedule_states" table.
	ScheduleStatesColumns = []*schema.Column{
		{Name: "user_id", Type: field.TypeString},
		{Name: "item_id", Type: field.TypeString},
		{Name: "state", Type: field.TypeString},
		{Name: "ease", Type: field.TypeFloat64},
		{Name: "interval_days", Type: field.TypeFloat64},
		{Name: "next_due", Type: field.TypeInt64},
		{Name: "last_reviewed_at", Type: field.TypeInt64},
		{Name: "consecutive_correct", Type: field.TypeInt},
		{Name: "total_reviews", Type: field.TypeInt},
		{Name: "lapses", Type: field.TypeInt},
		{Name: "success_rate", Type: field.TypeFloat64},
		{Name: "leech", Type: field.TypeBool},
		{Name: "updated_at", Type: field.TypeInt64},
	}
	// ScheduleStatesTable holds the schema information for the "schedule_states" table.
	ScheduleStatesTable = &schema.Table{
		Name:       TableScheduleStates,
		Columns:    ScheduleStatesColumns,
		PrimaryKey: []*schema.Column{ScheduleStatesColumns[0], ScheduleStatesColumns[1]},
		Indexes: []*schema.Index{
			{
				Name:    "schedulestate_user_id_next_due",
				Unique:  false,
				Columns: []*schema.Column{ScheduleStatesColumns[0], ScheduleStatesColumns[5]},
			},
		},
	}

	// SessionsColumns holds the columns for the "sessions" table.
	SessionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "user_id", Type: field.TypeString},
		{Name: "status", Type: field.TypeString},
		{Name: "started_at", Type: field.TypeInt64},
		{Name: "updated_at", Type: field.TypeInt64},
		{Name: "payload", Type: field.TypeJSON},
	}
	// SessionsTable holds the schema information for the "sessions" table.
	SessionsTable = &schema.Table{
		Name:       TableSessions,
		Columns:    SessionsColumns,
		PrimaryKey: []*schema.Column{SessionsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "session_user_id_updated_at",
				Unique:  false,
				Columns: []*schema.Column{SessionsColumns[1], SessionsColumns[4]},
			},
		},
	}

	// AnswersColumns holds the columns for the "answers" table.
	AnswersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "session_id", Type: field.TypeString},
		{Name: "user_id", Type: field.TypeString},
		{Name: "item_id", Type: field.TypeString},
		{Name: "correct", Type: field.TypeBool},
		{Name: "score", Type: field.TypeInt},
		{Name: "created_at", Type: field.TypeInt64},
		{Name: "payload", Type: field.TypeJSON},
	}
	// AnswersTable holds the schema information for the "answers" table.
	AnswersTable = &schema.Table{
		Name:       TableAnswers,
		Columns:    AnswersColumns,
		PrimaryKey: []*schema.Column{AnswersColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "answer_user_id_created_at",
				Unique:  false,
				Columns: []*schema.Column{AnswersColumns[2], AnswersColumns[6]},
			},
			{
				Name:    "answer_session_id",
				Unique:  false,
				Columns: []*schema.Column{AnswersColumns[1]},
			},
		},
	}

	// SyncRecordsColumns holds the columns for the "sync_records" table.
	SyncRecordsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "seq", Type: field.TypeInt64, Unique: true},
		{Name: "kind", Type: field.TypeString},
		{Name: "entity_key", Type: field.TypeString},
		{Name: "payload", Type: field.TypeBytes},
		{Name: "created_at", Type: field.TypeInt64},
		{Name: "retry_count", Type: field.TypeInt},
		{Name: "status", Type: field.TypeString},
		{Name: "next_attempt_at", Type: field.TypeInt64},
		{Name: "last_error", Type: field.TypeString},
		{Name: "updated_at", Type: field.TypeInt64},
	}
	// SyncRecordsTable holds the schema information for the "sync_records" table.
	SyncRecordsTable = &schema.Table{
		Name:       TableSyncRecords,
		Columns:    SyncRecordsColumns,
		PrimaryKey: []*schema.Column{SyncRecordsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "syncrecord_status_seq",
				Unique:  false,
				Columns: []*schema.Column{SyncRecordsColumns[7], SyncRecordsColumns[1]},
			},
			{
				Name:    "syncrecord_entity_key",
				Unique:  false,
				Columns: []*schema.Column{SyncRecordsColumns[3]},
			},
		},
	}

	// GlobalSequenceColumns holds the columns for the "global_sequence" table.
	GlobalSequenceColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt},
		{Name: "next_val", Type: field.TypeInt64},
	}
	// GlobalSequenceTable holds the single-row counter that orders sync records.
	GlobalSequenceTable = &schema.Table{
		Name:       TableGlobalSequence,
		Columns:    GlobalSequenceColumns,
		PrimaryKey: []*schema.Column{GlobalSequenceColumns[0]},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		ItemsTable,
		ScheduleStatesTable,
		SessionsTable,
		AnswersTable,
		SyncRecordsTable,
		GlobalSequenceTable,
	}
)
