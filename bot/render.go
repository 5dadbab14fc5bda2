package bot

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shorts-pipeline/failure"
	"shorts-pipeline/tasks"
	"shorts-pipeline/types"
	"shorts-pipeline/ytauth"
)

// esc escapes dynamic text for MarkdownV2
func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
}

// plainText undoes MarkdownV2 escaping and drops formatting marks, for
// resending a message Telegram refused to parse.
func plainText(md string) string {
	var b strings.Builder
	rs := []rune(md)
	inCode := false
	for i := 0; i < len(rs); i++ {
		switch r := rs[i]; {
		case r == '\\' && i+1 < len(rs):
			i++
			b.WriteRune(rs[i])
		case r == '`':
			inCode = !inCode
		case !inCode && (r == '*' || r == '_' || r == '~'):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func helpText() string {
	return "🤖 *YouTube Shorts Creator Bot*\n\n" +
		"💡 `/generate_tip` \\- generate a new tip and video prompt\n" +
		"🎬 `/create_video <id>` \\- create and upload the video for a tip\n" +
		"🔐 `/youtube_auth` \\- check YouTube upload authorization\n" +
		"❓ `/help` \\- show this help\n\n" +
		"Generate a tip first, then press the button under it or send its id with `/create_video`\\."
}

func payloadText(rec types.TaskRecord) string {
	var b strings.Builder
	b.WriteString("💡 *New tip ready*\n\n")
	fmt.Fprintf(&b, "*Title:* %s\n\n", esc(rec.Payload.Title))
	if rec.Payload.Script != "" {
		fmt.Fprintf(&b, "*Script:*\n%s\n\n", esc(rec.Payload.Script))
	}
	fmt.Fprintf(&b, "*Video prompt:*\n%s\n\n", esc(rec.Payload.GenerationPrompt))
	if rec.Payload.PlatformDescription != "" {
		fmt.Fprintf(&b, "*Description:*\n%s\n\n", esc(rec.Payload.PlatformDescription))
	}
	fmt.Fprintf(&b, "*Task ID:* `%s`\n", rec.TaskID)
	fmt.Fprintf(&b, "Press the button or send `/create_video %s`\\.", rec.TaskID)
	return b.String()
}

func dispatchText(d *tasks.Dispatch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚀 *Video creation started*\n\n*Task ID:* `%s`\n*Title:* %s\n\n", d.TaskID, esc(d.Title))
	b.WriteString("This takes several minutes\\. I will report back when it finishes\\.")
	if d.UploadAuthWarning != "" {
		fmt.Fprintf(&b, "\n\n⚠️ %s", esc(d.UploadAuthWarning))
	}
	return b.String()
}

func resultText(res *types.PipelineResult) string {
	var b strings.Builder
	if res.Err == nil {
		b.WriteString("✅ *Video finished*\n\n")
		fmt.Fprintf(&b, "*Task ID:* `%s`\n*Title:* %s\n", res.TaskID, esc(res.Title))
		switch {
		case res.VideoURL != "":
			fmt.Fprintf(&b, "*YouTube:* %s\n", esc(res.VideoURL))
		case res.VideoFile != "":
			fmt.Fprintf(&b, "*File:* %s\n", esc(res.VideoFile))
		}
		if d := res.Duration(); d > 0 {
			fmt.Fprintf(&b, "*Took:* %s", esc(d.Round(time.Second).String()))
		}
		return strings.TrimRight(b.String(), "\n")
	}

	fe := failure.Classify(res.Err, failure.KindInternal, res.FailedStep, res.Location)
	fmt.Fprintf(&b, "❌ *Video creation failed*\n\n*Task ID:* `%s`\n*Reason:* %s\n", res.TaskID, esc(describe(fe.Kind)))
	if fe.Step != "" {
		fmt.Fprintf(&b, "*Step:* %s\n", esc(fe.Step))
	}
	if fe.Location != "" {
		fmt.Fprintf(&b, "*Page:* %s\n", esc(fe.Location))
	}
	fmt.Fprintf(&b, "*Details:* %s", esc(fe.Error()))
	if hint := hintFor(fe); hint != "" {
		fmt.Fprintf(&b, "\n\n💡 %s", esc(hint))
	}
	return b.String()
}

func errorText(prefix string, err error) string {
	fe := failure.Classify(err, failure.KindInternal, "", "")
	text := fmt.Sprintf("❌ %s: %s", esc(prefix), esc(fe.Error()))
	if hint := hintFor(fe); hint != "" {
		text += "\n\n💡 " + esc(hint)
	}
	return text
}

func describe(k failure.Kind) string {
	switch k {
	case failure.KindEnvironment:
		return "the browser could not start"
	case failure.KindLoginFailed:
		return "InVideo login failed"
	case failure.KindStepTimeout:
		return "an InVideo step timed out"
	case failure.KindDownloadTimeout:
		return "the video download never finished"
	case failure.KindValidation:
		return "the video or its metadata failed validation"
	case failure.KindUploadFailed:
		return "the YouTube upload failed"
	case failure.KindUnknownTask:
		return "unknown task id"
	case failure.KindBusy:
		return "busy"
	}
	return "unexpected error"
}

func hintFor(fe *failure.Error) string {
	if fe.Hint != "" {
		return fe.Hint
	}
	switch fe.Kind {
	case failure.KindStepTimeout, failure.KindDownloadTimeout:
		return "InVideo may be slow right now; generate a new tip and try again"
	case failure.KindValidation:
		return "check the title and description lengths and the downloaded file"
	}
	return ""
}

func authText(st ytauth.Status, initiateURL string) string {
	var b strings.Builder
	if st.Authenticated {
		b.WriteString("✅ *YouTube is authorized*\n\n")
		fmt.Fprintf(&b, "*Token source:* %s", esc(st.Source))
		if !st.Expiry.IsZero() {
			fmt.Fprintf(&b, "\n*Access token expiry:* %s", esc(st.Expiry.Format("2006-01-02 15:04 MST")))
		}
		return b.String()
	}
	b.WriteString("❌ *YouTube is not authorized*\n\n")
	if st.Detail != "" {
		fmt.Fprintf(&b, "%s\n\n", esc(st.Detail))
	}
	if !st.Configured {
		b.WriteString("Set YOUTUBE\\_CLIENT\\_ID and YOUTUBE\\_CLIENT\\_SECRET first\\.")
		return b.String()
	}
	fmt.Fprintf(&b, "Open this link to authorize:\n%s\n\n", esc(initiateURL))
	b.WriteString("Then check again with `/youtube_auth`\\.")
	return b.String()
}
