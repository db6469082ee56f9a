package constants

// Agent kinds recorded in the run ledger.
const (
	AgentKindScheduler = "scheduler"
	AgentKindQuery     = "query"
)

// Trigger sources stored in run metadata.
const (
	TriggerScheduler = "scheduler"
	TriggerManual    = "manual"
)

// Metadata keys used on run ledger entries.
const (
	MetaTrigger        = "trigger"
	MetaActorID        = "actorId"
	MetaConversationID = "conversationId"
	MetaUserID         = "userId"
	MetaQuery          = "query"
)
