// Package krishi is the client-side voice assistant SDK for the Krishi
// farming-assistance app: press-and-hold capture, speech-to-reply
// transport, conversation transcript, and spoken playback.
//
// # Overview
//
// The SDK covers one voice interaction session end to end:
//   - Microphone capture with a hard per-utterance ceiling
//   - One-shot utterance submission and structured assist replies
//   - Append-only conversation transcript with backend history
//   - Reply playback with toggle-to-stop
//   - Advisory live level meter over WebSocket
//   - Structured logging with Zerolog
//
// # Quick Start
//
//	config := krishi.NewConfig()
//	session := krishi.NewDefaultSession(config, krishi.StaticToken(token))
//
//	session.AddMessageHandler(krishi.CreateTranscriptPrinter(os.Stdout))
//	session.AddErrorHandler(krishi.CreateErrorLoggingHandler("Main"))
//
//	session.Open(ctx, farmerID)
//	defer session.Close()
//
//	if err := session.StartListening(); err != nil {
//		log.Fatal(err)
//	}
//	// ... user finishes speaking ...
//	session.StopListening(ctx)
//	session.WaitIdle(ctx)
//
// # Session States
//
// A session is always in exactly one of four states: Idle, Listening,
// AwaitingReply, Speaking. Every operation and every asynchronous
// completion maps to a defined transition; stale completions that
// arrive after an interrupt are defined no-ops.
//
// # Interruption
//
// Cancel stops whatever leg of the turn is active: capture is
// discarded, an in-flight reply is abandoned, playback is cut off.
// Calling StartListening while the assistant is Speaking interrupts
// the playback and begins a new capture in one step.
//
// # Configuration
//
// Config reads KRISHI_* environment variables (a .env file is honored)
// and validates before use:
//
//	config := krishi.NewConfig()
//	if problems := config.Validate(); len(problems) > 0 {
//		log.Fatal(problems)
//	}
//
// # Error Handling
//
// All failures carry a stable code:
//
//	err := krishi.NewTransportError(503, "assist unavailable")
//	err.AddDetail("endpoint", cfg.AssistEndpoint)
//
//	if krishi.IsErrorCode(err, krishi.ErrCodeTransportTimeout) {
//		// surface "check your connection" to the user
//	}
//
// # CLI Tool
//
//	# one voice turn, press Enter to stop early
//	./krishi talk --farmer-id f123
//
//	# text turn over the same contract
//	./krishi chat "When should I irrigate wheat?"
//
//	# list audio devices
//	./krishi devices list
//
// # Dependencies
//
// The SDK depends on:
//   - github.com/gordonklaus/portaudio: Audio I/O
//   - github.com/gorilla/websocket: Level meter channel
//   - github.com/rs/zerolog: Structured logging
//   - github.com/spf13/cobra: CLI framework
//   - github.com/golang-jwt/jwt/v4: Dev token minting
//   - github.com/joho/godotenv: Environment variables
//   - github.com/google/uuid: Message IDs
package krishi
