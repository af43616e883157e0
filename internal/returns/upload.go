package returns

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/hitoshi/bijou/internal/model"
)

// MaxImageBytes はアップロードできる証拠画像1枚の最大サイズ。
const MaxImageBytes = 5 << 20

// allowedImageTypes は受け付ける画像形式と保存時の拡張子。
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Uploader はオブジェクトストレージへの保存を抽象化する。
type Uploader interface {
	Upload(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) (string, error)
}

// EvidenceFile はアップロードされた証拠画像。
type EvidenceFile struct {
	Name string
	Size int64
	Body io.ReadSeeker
}

// UploadEvidenceImages は証拠画像を保存し、返品申請のimagesに使えるURLを返す。
// 形式は内容から判定し、宣言されたContent-Typeは信用しない。
func (s *Service) UploadEvidenceImages(ctx context.Context, userID string, files []EvidenceFile) ([]string, error) {
	if s.opts.Uploader == nil {
		return nil, model.NewProviderUnavailableError("storage")
	}
	if len(files) == 0 {
		return nil, model.NewValidationError("画像ファイルがありません。")
	}
	if len(files) > MaxImages {
		return nil, model.NewValidationError(fmt.Sprintf("画像は%d枚まで添付できます。", MaxImages))
	}

	type checked struct {
		file        EvidenceFile
		contentType string
		ext         string
	}
	valid := make([]checked, 0, len(files))
	for _, f := range files {
		if f.Size <= 0 || f.Size > MaxImageBytes {
			return nil, model.NewValidationError(fmt.Sprintf("画像サイズは%dMBまでです: %s", MaxImageBytes>>20, f.Name))
		}
		contentType, err := sniff(f.Body)
		if err != nil {
			return nil, fmt.Errorf("画像の読み取りに失敗しました: %w", err)
		}
		ext, ok := allowedImageTypes[contentType]
		if !ok {
			return nil, model.NewValidationError(fmt.Sprintf("対応していない画像形式です: %s", f.Name))
		}
		valid = append(valid, checked{file: f, contentType: contentType, ext: ext})
	}

	urls := make([]string, 0, len(valid))
	for _, c := range valid {
		key := fmt.Sprintf("returns/%s/%s%s", userID, uuid.New().String(), c.ext)
		u, err := s.opts.Uploader.Upload(ctx, key, c.file.Body, c.file.Size, c.contentType)
		if err != nil {
			slog.Error("evidence upload failed", slog.String("user_id", userID), slog.String("error", err.Error()))
			return nil, model.NewProviderUnavailableError("storage")
		}
		urls = append(urls, u)
	}

	slog.Info("evidence images uploaded", slog.String("user_id", userID), slog.Int("count", len(urls)))
	return urls, nil
}

// sniff は先頭512バイトから形式を判定し、読み取り位置を先頭に戻す。
func sniff(r io.ReadSeeker) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}
