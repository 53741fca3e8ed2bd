package dto

// RelayTokenRequest asks for a room join token.
type RelayTokenRequest struct {
	Identity string `json:"identity"`
	Room     string `json:"room"`
}

// RelayTokenResponse carries the signed token.
type RelayTokenResponse struct {
	Token    string `json:"token"`
	Identity string `json:"identity"`
	Room     string `json:"room"`
	URL      string `json:"url,omitempty"`
}

// ConversationMessageRequest is a typed caller message.
type ConversationMessageRequest struct {
	Message string `json:"message"`
}

// TurnResponse reports how the agent answered.
type TurnResponse struct {
	Question   string                  `json:"question"`
	Answer     string                  `json:"answer"`
	Escalated  bool                    `json:"escalated"`
	Relayed    bool                    `json:"relayed"`
	Entry      *KnowledgeEntryResponse `json:"kb_entry,omitempty"`
	Transcript []TranscriptLine        `json:"transcript"`
}

// TranscriptLine is one speaker-tagged line.
type TranscriptLine struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// JoinRoomResponse reports the agent's room membership.
type JoinRoomResponse struct {
	Room       string           `json:"room"`
	Identity   string           `json:"identity"`
	Transcript []TranscriptLine `json:"transcript"`
}
