package config

type WorkerKeyStruct struct {
	PersistAttemptStartsQueue string
	PersistResultsQueue       string
	PersistAnswersQueue       string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAttemptStartsQueue: "persist_attempt_starts_queue",
	PersistResultsQueue:       "persist_results_queue",
	PersistAnswersQueue:       "persist_answers_queue",
}
