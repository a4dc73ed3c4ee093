package compose

import (
	"log"
	"os"

	"broadcastbot/internal/dispatch"
	"broadcastbot/internal/storage"
)

// Step identifies where in the composition dialogue an operator is.
type Step string

const (
	// StepMenu is the resting state: the main menu is shown and the next
	// input picks an action.
	StepMenu Step = "menu"
	// StepKindSelect waits for the text-or-media choice of a new post.
	StepKindSelect Step = "kind_select"
	// StepTextIntake waits for the post text.
	StepTextIntake Step = "text_intake"
	// StepSpoilerText waits for the yes/no decision on hiding the text.
	StepSpoilerText Step = "spoiler_text"
	// StepSpoilerScope waits for the whole-text vs fragment choice.
	StepSpoilerScope Step = "spoiler_scope"
	// StepFragmentIntake waits for the substring to hide.
	StepFragmentIntake Step = "fragment_intake"
	// StepMediaIntake waits for the next gallery attachment or /done.
	StepMediaIntake Step = "media_intake"
	// StepSpoilerMedia waits for the yes/no decision on the staged item.
	StepSpoilerMedia Step = "spoiler_media"
	// StepVideoNoteIntake waits for a video to turn into a video note.
	StepVideoNoteIntake Step = "video_note_intake"
	// StepVoiceIntake waits for a voice attachment.
	StepVoiceIntake Step = "voice_intake"
	// StepChannelSelect waits for the target channel of a finished draft.
	StepChannelSelect Step = "channel_select"
	// StepPostLookup waits for the post id of an edit/delete action.
	StepPostLookup Step = "post_lookup"
	// StepEditIntake waits for the replacement text of a located post.
	StepEditIntake Step = "edit_intake"
)

// Lookup actions chosen from the main menu.
const (
	actionEdit   = "edit"
	actionDelete = "delete"
)

// Session is the ephemeral, serializable state of one operator's
// composition dialogue. A draft lives only here until dispatch; cancel
// or session replacement discards it.
type Session struct {
	Step Step

	// Draft accumulator for the post path.
	Text   string
	Media  []storage.MediaItem
	Staged *storage.MediaItem

	// Finished draft awaiting channel selection.
	Draft *dispatch.Draft

	// Lookup state for edit/delete.
	Action string
	PostID string

	// Temporary files to remove on cancel or after dispatch.
	TempPaths []string
}

// newSession returns a fresh session resting at the main menu.
func newSession() *Session {
	return &Session{Step: StepMenu}
}

// cleanupTemp removes any staged temporary media files.
func (s *Session) cleanupTemp() {
	for _, path := range s.TempPaths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("[Compose] Failed to remove temp file %s: %v", path, err)
		}
	}
	s.TempPaths = nil
}
