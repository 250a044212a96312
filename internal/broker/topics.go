package broker

const topicPrefix = "chat/v1"

// ReceiptsIngress is the topic clients publish watermarks to.
const ReceiptsIngress = topicPrefix + "/receipts"

func UserMessages(userID string) string {
	return topicPrefix + "/users/" + userID + "/messages"
}

func UserReceipts(userID string) string {
	return topicPrefix + "/users/" + userID + "/receipts"
}

func UserConversations(userID string) string {
	return topicPrefix + "/users/" + userID + "/conversations"
}
