package protocol

// RPC method names for a webchat control connection. The webchat adapter
// does not dispatch on them: it reads every client frame as a chat message
// carrying a chat id, text and an optional sender.
const (
	MethodConnect = "connect"
	MethodHealth  = "health"

	MethodChatSend    = "chat.send"
	MethodChatHistory = "chat.history"
	MethodChatAbort   = "chat.abort"

	MethodSessionsList  = "sessions.list"
	MethodSessionsReset = "sessions.reset"

	MethodChannelsList   = "channels.list"
	MethodChannelsStatus = "channels.status"

	MethodPairingApprove = "pairing.approve"
	MethodPairingList    = "pairing.list"
	MethodPairingRevoke  = "pairing.revoke"

	MethodCronList   = "cron.list"
	MethodCronCreate = "cron.create"
	MethodCronDelete = "cron.delete"
)
