package imagery

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/watch-research/internal/blob"
	"github.com/sells-group/watch-research/internal/model"
	"github.com/sells-group/watch-research/internal/scrape"
)

// Getter performs a plain GET and returns the response whatever its status.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*scrape.Response, error)
}

// Acquirer downloads image candidates into blob storage.
type Acquirer struct {
	http    Getter
	storage *blob.Storage
}

// NewAcquirer creates an Acquirer.
func NewAcquirer(g Getter, storage *blob.Storage) *Acquirer {
	return &Acquirer{http: g, storage: storage}
}

// Download fetches each candidate in order and stores those that respond
// with an image. The filename index is the candidate's 1-based position, so
// skipped candidates leave gaps. Failures are logged and never stop the
// batch.
func (a *Acquirer) Download(ctx context.Context, candidates []model.ImageCandidate, brand, ref string) []model.DownloadedImage {
	var out []model.DownloadedImage

	for i, c := range candidates {
		if ctx.Err() != nil {
			zap.L().Warn("imagery: download cancelled", zap.Int("remaining", len(candidates)-i))
			break
		}

		resp, err := a.http.Get(ctx, c.URL)
		if err != nil {
			zap.L().Warn("imagery: download failed", zap.String("url", c.URL), zap.Error(err))
			continue
		}
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			zap.L().Warn("imagery: download rejected",
				zap.String("url", c.URL),
				zap.Int("status", resp.StatusCode),
			)
			continue
		}

		mimeType := mediaType(resp.ContentType)
		if !strings.HasPrefix(mimeType, "image/") {
			zap.L().Warn("imagery: invalid content type",
				zap.String("url", c.URL),
				zap.String("content_type", resp.ContentType),
			)
			continue
		}
		if len(resp.Body) == 0 {
			zap.L().Warn("imagery: empty image body", zap.String("url", c.URL))
			continue
		}

		filename := Filename(brand, ref, i+1, ExtensionFor(mimeType))
		path := blob.ImagePath(filename)
		if err := a.storage.Put(path, resp.Body); err != nil {
			zap.L().Error("imagery: store image failed", zap.String("path", path), zap.Error(err))
			continue
		}

		zap.L().Info("imagery: image downloaded", zap.String("path", path))
		out = append(out, model.DownloadedImage{
			Filename:    filename,
			StoragePath: path,
			MimeType:    mimeType,
			FileSize:    int64(len(resp.Body)),
			SourceURL:   c.URL,
		})
	}

	return out
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// ExtensionFor maps an image media type to a file extension. Anything other
// than png or webp is stored as jpg.
func ExtensionFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "png"):
		return "png"
	case strings.Contains(mimeType, "webp"):
		return "webp"
	default:
		return "jpg"
	}
}

// Filename builds "<brand-slug>-<ref>-<index>.<ext>". Path separators and
// whitespace in the reference are replaced so the name stays a single path
// segment.
func Filename(brand, ref string, index int, ext string) string {
	safeRef := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || unicode.IsSpace(r) {
			return '-'
		}
		return r
	}, strings.TrimSpace(ref))
	return fmt.Sprintf("%s-%s-%d.%s", Slugify(brand), safeRef, index, ext)
}

var ligatures = strings.NewReplacer("ß", "ss", "æ", "ae", "Æ", "ae", "ø", "o", "Ø", "o", "œ", "oe", "Œ", "oe")

// Slugify lowercases s, strips diacritics and joins alphanumeric runs with
// hyphens ("Jaeger-LeCoultre" -> "jaeger-lecoultre", "Glashütte" -> "glashutte").
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, ligatures.Replace(s))
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
