package entity

import "time"

// MediaCategory classe un média côté stockage, dérivée du type MIME.
type MediaCategory string

const (
	MediaImages    MediaCategory = "images"
	MediaVideos    MediaCategory = "videos"
	MediaAudios    MediaCategory = "audios"
	MediaDocuments MediaCategory = "documents"
	MediaOthers    MediaCategory = "others"
)

// UploadContext distingue l'origine d'un média attaché à un signalement.
type UploadContext string

const (
	ContextStandard      UploadContext = "standard"
	ContextRepublication UploadContext = "republication"
	ContextExternalURL   UploadContext = "external_url"
)

// MediaElement est la métadonnée d'un média embarqué dans un signalement.
// La liste complète est sérialisée en JSON dans une colonne unique de la
// table signalements ; il n'y a pas de table médias séparée.
type MediaElement struct {
	Filename      string        `json:"filename"`
	StoragePath   string        `json:"storage_path"`
	Mimetype      string        `json:"mimetype"`
	Category      MediaCategory `json:"category"`
	Size          int64         `json:"size"`
	Hash          string        `json:"hash,omitempty"` // MD5 des octets originaux
	UploadedAt    time.Time     `json:"uploaded_at"`
	URL           string        `json:"url"`
	DownloadURL   string        `json:"download_url,omitempty"`
	ThumbnailURL  string        `json:"thumbnail_url,omitempty"`
	PreviewURL    string        `json:"preview_url,omitempty"`
	FullURL       string        `json:"full_url,omitempty"`
	UploadContext UploadContext `json:"upload_context"`
	IsImage       bool          `json:"is_image"`
	IsVideo       bool          `json:"is_video"`
	IsAudio       bool          `json:"is_audio"`
	IsDocument    bool          `json:"is_document"`
}

// ApplyCategoryFlags recalcule les drapeaux dérivés à partir de la catégorie.
func (m *MediaElement) ApplyCategoryFlags() {
	m.IsImage = m.Category == MediaImages
	m.IsVideo = m.Category == MediaVideos
	m.IsAudio = m.Category == MediaAudios
	m.IsDocument = m.Category == MediaDocuments
}
