package config

type WorkerKeyStruct struct {
	PersistAuditLogQueue     string
	PersistQuestionSnapQueue string
	PersistSessionSnapQueue  string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAuditLogQueue:     "persist_audit_log_queue",
	PersistQuestionSnapQueue: "persist_question_snapshot_queue",
	PersistSessionSnapQueue:  "persist_session_snapshot_queue",
}
