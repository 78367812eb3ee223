package config

type WorkerKeyStruct struct {
	PersistWarningsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistWarningsQueue: "persist_warnings_queue",
}
