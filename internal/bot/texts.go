package bot

// User facing texts.
const (
	textStart = "👋 Send me an `.mp4` or `.mkv` video (as video or document), and I'll take evenly spaced screenshots for you!"
	textHelp  = "📖 *How it works*\n\n" +
		"1. Send an `.mp4` or `.mkv` video, as a video or as a file.\n" +
		"2. Pick how many screenshots you want.\n" +
		"3. Get them back as an album.\n\n" +
		"/cancel drops a video you uploaded but did not process yet."

	textUnsupported    = "❌ Only `.mp4` and `.mkv` formats are supported."
	textTooLarge       = "❌ The file is too large. The limit is %d MB."
	textDownloading    = "📥 Downloading file..."
	textDownloaded     = "✅ File downloaded.\n\n📸 How many screenshots do you want?"
	textDownloadFailed = "❌ Failed to download the file. Please try again."
	textChooseCount    = "Please select how many screenshots to generate (1–20):"

	textNoVideo    = "No video found. Please upload a new one."
	textGenerating = "🛠 Generating %d screenshots..."

	textNoDuration    = "❌ Unable to get video duration."
	textFrameFailed   = "⚠️ Failed at %ds: %s"
	textNoScreenshots = "❌ No screenshots were generated."

	textCancelled = "🗑 Upload cancelled."
	textNoPending = "ℹ️ No pending uploads."

	textUnauthorized   = "⛔ You are not authorized to use this command."
	textStats          = "📊 Users: %d\n🎞 Files processed: %d\n⏳ Pending uploads: %d"
	textBroadcastUsage = "↩️ Reply to the message you want to broadcast with /broadcast."
	textBroadcasting   = "📣 Broadcasting..."
	textBroadcastDone  = "✅ Broadcast finished.\n\nSent: %d\nFailed: %d\nRate limited: %d\nPruned: %d"
	textBroadcastStop  = "⚠️ Broadcast stopped early: %s\n\nSent: %d\nFailed: %d\nRate limited: %d\nPruned: %d"
)
