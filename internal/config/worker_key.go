package config

type WorkerKeyStruct struct {
	PersistProgressQueue      string
	PersistQuestionOrderQueue string
	PersistResultsQueue       string
}

var WorkerKey = &WorkerKeyStruct{
	PersistProgressQueue:      "persist_progress_queue",
	PersistQuestionOrderQueue: "persist_question_order_queue",
	PersistResultsQueue:       "persist_results_queue",
}
