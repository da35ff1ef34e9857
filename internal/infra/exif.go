package infra

import (
	"fmt"

	"github.com/barasher/go-exiftool"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// ExifTagger implements domain.MediaTagger with a long-running exiftool process.
type ExifTagger struct {
	et *exiftool.Exiftool
}

// NewExifTagger starts exiftool. It fails if the exiftool binary is missing.
func NewExifTagger() (*ExifTagger, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("exiftool: %w", err)
	}
	return &ExifTagger{et: et}, nil
}

// Tag writes identity as the file's keyword, overwriting the original.
func (t *ExifTagger) Tag(path, identity string) error {
	md := t.et.ExtractMetadata(path)
	if len(md) == 0 {
		return fmt.Errorf("no metadata for %s", path)
	}
	if md[0].Err != nil {
		return fmt.Errorf("read metadata: %w", md[0].Err)
	}

	md[0].SetStrings("Keywords", []string{identity})
	md[0].SetString("Software", "kidcam")
	t.et.WriteMetadata(md)
	if md[0].Err != nil {
		return fmt.Errorf("write metadata: %w", md[0].Err)
	}
	return nil
}

// Keywords reads back the keywords of path.
func (t *ExifTagger) Keywords(path string) ([]string, error) {
	md := t.et.ExtractMetadata(path)
	if len(md) == 0 {
		return nil, fmt.Errorf("no metadata for %s", path)
	}
	if md[0].Err != nil {
		return nil, md[0].Err
	}
	return md[0].GetStrings("Keywords")
}

// Close stops the exiftool process.
func (t *ExifTagger) Close() error {
	return t.et.Close()
}

// Ensure ExifTagger implements domain.MediaTagger.
var _ domain.MediaTagger = (*ExifTagger)(nil)
