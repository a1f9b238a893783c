package backend

// TranscriptResponse is returned by the non-streaming transcript endpoints.
type TranscriptResponse struct {
	Transcript string `json:"transcript"`
	Title      string `json:"title,omitempty"`
}

// ChatMessage is one turn of the conversation sent to /chat/on-topic.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SuggestedQuestion is one entry of the suggested-questions response.
type SuggestedQuestion struct {
	Topic    string `json:"topic"`
	Question string `json:"question"`
}

// generateRequest is the body for the summary and quiz stream endpoints.
type generateRequest struct {
	Transcript string `json:"transcript"`
	Refresh    bool   `json:"refresh"`
	UseOpenAI  bool   `json:"use_openai"`
}

// chatRequest is the body for /chat/on-topic.
type chatRequest struct {
	Transcript  string        `json:"transcript"`
	ChatHistory []ChatMessage `json:"chatHistory"`
}
