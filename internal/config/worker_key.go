package config

// WorkerKeyStruct names the Redis lists the answer persist worker uses.
type WorkerKeyStruct struct {
	// PersistAnswersQueue holds answers saved to Redis that PostgreSQL has
	// not seen yet.
	PersistAnswersQueue string
	// PersistAnswersDeadLetter keeps queue entries that could not be decoded.
	PersistAnswersDeadLetter string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:      "persist_answers_queue",
	PersistAnswersDeadLetter: "persist_answers_dead_letter",
}
