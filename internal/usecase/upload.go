package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/phuslu/log"

	"dedup/internal/domain"
)

// DefaultAllowedExtensions are the file types accepted for upload.
var DefaultAllowedExtensions = []string{".txt", ".md"}

// UploadUseCase stores uploaded files unless an identical one is already present.
type UploadUseCase struct {
	store      *DocumentStore
	logger     *log.Logger
	extensions []string
}

// NewUploadUseCase creates an upload workflow over store. An empty
// extensions list falls back to DefaultAllowedExtensions.
func NewUploadUseCase(store *DocumentStore, logger *log.Logger, extensions []string) *UploadUseCase {
	if len(extensions) == 0 {
		extensions = DefaultAllowedExtensions
	}
	normalized := make([]string, len(extensions))
	for i, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[i] = ext
	}
	return &UploadUseCase{store: store, logger: logger, extensions: normalized}
}

// Validate checks that name has an accepted extension and content is UTF-8 text.
func (u *UploadUseCase) Validate(name string, content []byte) error {
	if name == "" {
		return domain.ErrEmptyID
	}
	ext := strings.ToLower(filepath.Ext(name))
	allowed := false
	for _, e := range u.extensions {
		if e == ext {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %q (allowed: %s)", domain.ErrUnsupportedType, name, strings.Join(u.extensions, ", "))
	}
	if !utf8.Valid(content) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidEncoding, name)
	}
	return nil
}

// Upload stores content under name unless identical documents already exist,
// in which case nothing is written and their ids are reported.
func (u *UploadUseCase) Upload(ctx context.Context, name string, content []byte) (domain.UploadResult, error) {
	result := domain.UploadResult{ID: name}
	if err := u.Validate(name, content); err != nil {
		return result, err
	}
	text := string(content)

	matches, err := u.store.FindExactMatches(ctx, text)
	if err != nil {
		return result, err
	}
	if len(matches) > 0 {
		result.Status = domain.UploadDuplicate
		result.Duplicates = matches
		u.logger.Info().Str("file", name).Strs("duplicates", matches).Msg("duplicate upload rejected")
		return result, nil
	}

	if err := u.store.Upsert(ctx, name, text); err != nil {
		return result, err
	}
	result.Status = domain.UploadStored
	u.logger.Info().Str("file", name).Int("bytes", len(content)).Msg("file stored")
	return result, nil
}

// Matches returns ids of documents identical to text.
func (u *UploadUseCase) Matches(ctx context.Context, text string) ([]string, error) {
	return u.store.FindExactMatches(ctx, text)
}

// Document returns the stored file named id.
func (u *UploadUseCase) Document(ctx context.Context, id string) (domain.Document, bool, error) {
	return u.store.Document(ctx, id)
}

// Inventory lists stored ids. Enumeration failures are logged and reported
// as an empty inventory.
func (u *UploadUseCase) Inventory(ctx context.Context) []string {
	ids, err := u.store.ListAllIDs(ctx)
	if err != nil {
		u.logger.Warn().Err(err).Str("collection", u.store.CollectionName()).Msg("failed to list stored files")
		return []string{}
	}
	return ids
}
