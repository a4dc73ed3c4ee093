package storage

// PostKind identifies which fields of a Post are populated.
type PostKind string

const (
	KindText      PostKind = "text"
	KindMedia     PostKind = "media"
	KindTextMedia PostKind = "text_media"
	KindVideoNote PostKind = "video_note"
	KindVoice     PostKind = "voice"
)

// MediaKind identifies the transport type of a single media item.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// MediaItem is one entry of a post's media gallery. Only the first item
// of a gallery ever carries the post's caption; later items never do.
type MediaItem struct {
	Kind    MediaKind `bson:"kind" json:"kind"`
	FileID  string    `bson:"file_id" json:"file_id"`
	Spoiler bool      `bson:"spoiler" json:"spoiler"`
	// Path is the local file the item is uploaded from. File ids are
	// scoped to the bot that obtained them, so channel bots cannot replay
	// the id the admin bot received; they upload from disk instead. The
	// path points at a temp file deleted after dispatch and is never
	// persisted.
	Path string `bson:"-" json:"-"`
}

// Post is a persisted, broadcastable unit of content. Kind determines
// which of Content/Media/MediaRef are populated: text has Content only,
// media has Media only, text_media has both, video_note and voice carry
// a single MediaRef. MediaRef holds the remote file id the channel bot
// was assigned on the first successful upload, so the reference stays
// valid after the local temp file is deleted.
type Post struct {
	ID       string      `bson:"_id" json:"id"`
	Content  string      `bson:"content" json:"content"`
	Kind     PostKind    `bson:"kind" json:"kind"`
	Media    []MediaItem `bson:"media,omitempty" json:"media,omitempty"`
	MediaRef string      `bson:"media_ref,omitempty" json:"media_ref,omitempty"`
	Channel  string      `bson:"channel" json:"channel"`
}

// Delivery records that a post reached one recipient as one concrete
// remote message. A media group produces one Delivery per message the
// transport created.
type Delivery struct {
	PostID      string `bson:"post_id" json:"post_id"`
	Channel     string `bson:"channel" json:"channel"`
	RecipientID int64  `bson:"recipient_id" json:"recipient_id"`
	MessageID   int    `bson:"message_id" json:"message_id"`
}
