package config

import "time"

const (
	// Transcript
	TitleMaxRunes = 30
	DefaultTitle  = "Untitled"

	// Fixed transcript texts
	FailureText       = "Sorry, I encountered an error."
	RateLimitedText   = "Too many requests right now. Please wait a moment and try again."
	EmptyResponseText = "Sorry, I couldn't get a response."

	// Backend timeouts
	RequestTimeout    = 90 * time.Second
	BackgroundTimeout = 30 * time.Second

	// Chat list cache duration
	ChatListCacheDuration = 5 * time.Minute

	// Speech command timeouts
	TranscribeTimeout = 60 * time.Second
	SynthesizeTimeout = 60 * time.Second

	// Telegram limits
	MaxTelegramMessageLen = 4096

	// Rate limits (per minute, per chat)
	RateLimitPerMinute = 20

	// Stale rate-limit window cleanup
	RateLimitCleanupInterval = 5 * time.Minute
	RateLimitWindowRetention = 10 * time.Minute

	// Chats per page
	ChatsPerPage = 5

	// Download and encode of one attachment
	AttachmentDecodeTimeout = 60 * time.Second

	// Attachment preview name length in keyboards
	AttachmentLabelRunes = 24
)

// Cyber security training prompts. The intro format takes the level and the persona.
const (
	CyberLearnPrompt         = "Teach me Cyber Security theory from A to Z, step by step. Start with the basics and explain concepts clearly."
	CyberBasicPersona        = "Act as a naive scammer (e.g., Nigerian Prince or Lottery winner). Use slightly poor grammar, make obvious demands for money. Do not break character. Keep responses short."
	CyberIntermediatePersona = "Act as a somewhat convincing scammer posing as 'Amazon Support'. Use urgent language claiming a transaction was authorized. Do not break character. Keep responses short."
	CyberIntroFormat         = "[SYSTEM: SIMULATION STARTED - LEVEL: %s]\n%s\n\nStart the conversation now by greeting the victim."
	CyberResetPrompt         = "[SYSTEM COMMAND: The simulation is successfully finished. STOP roleplaying as a scammer. RESET your persona to 'Sofia AI'.]"
)

// DocumentExtensions are accepted by the "upload file" picker alongside any image/* type.
var DocumentExtensions = []string{".pdf", ".doc", ".docx", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp"}

// CodeExtensions are accepted by the "upload code" picker.
var CodeExtensions = []string{
	".txt", ".py", ".js", ".java", ".c", ".cpp", ".h", ".html", ".css",
	".json", ".md", ".sh", ".rb", ".go", ".php", ".swift", ".kt",
}
