package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/bijou/internal/auth"
	"github.com/hitoshi/bijou/internal/model"
	"github.com/hitoshi/bijou/internal/returns"
)

// maxUploadBytes はマルチパートアップロード全体の上限。
const maxUploadBytes = returns.MaxImages*returns.MaxImageBytes + 1<<20

// ReturnServiceInterface は返品ハンドラーが必要とするサービスインターフェース。
type ReturnServiceInterface interface {
	CreateReturnRequest(ctx context.Context, userID string, in returns.CreateInput) (*model.ReturnRequest, error)
	ListMyReturns(ctx context.Context, userID string) ([]*model.ReturnRequest, error)
	CancelReturnRequest(ctx context.Context, userID, returnID string) (*model.ReturnRequest, error)
	AttachTracking(ctx context.Context, userID, returnID, trackingNumber string) (*model.ReturnRequest, error)
	UploadEvidenceImages(ctx context.Context, userID string, files []returns.EvidenceFile) ([]string, error)

	AdminListReturns(ctx context.Context, requester auth.Principal, status model.ReturnStatus) ([]model.ReturnRequestWithRefs, error)
	AdminUpdateReturn(ctx context.Context, requester auth.Principal, returnID string, in returns.AdminUpdateInput) (*model.ReturnRequest, error)
	AdminExportReturns(ctx context.Context, requester auth.Principal, status model.ReturnStatus, w io.Writer) error
}

// ReturnHandler は返品申請のHTTPハンドラー。
type ReturnHandler struct {
	service ReturnServiceInterface
	now     func() time.Time
}

// NewReturnHandler はReturnHandlerを生成する。
func NewReturnHandler(service ReturnServiceInterface) *ReturnHandler {
	return &ReturnHandler{service: service, now: time.Now}
}

type returnItemRequest struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"min=1,max=100"`
}

type createReturnRequest struct {
	OrderID       string              `json:"order_id" validate:"required,max=64"`
	Items         []returnItemRequest `json:"items" validate:"max=50,dive"`
	Reason        model.ReturnReason  `json:"reason" validate:"required"`
	ReasonDetails string              `json:"reason_details"`
	Images        []string            `json:"images" validate:"max=5,dive,required"`
}

type attachTrackingRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"required"`
}

type adminUpdateReturnRequest struct {
	Status       *model.ReturnStatus `json:"status"`
	AdminNotes   *string             `json:"admin_notes" validate:"omitempty,max=2000"`
	RefundAmount *decimal.Decimal    `json:"refund_amount"`
}

type uploadImagesResponse struct {
	URLs []string `json:"urls"`
}

// Create は返品申請を作成する。
// POST /returns
func (h *ReturnHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req createReturnRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	items := make([]returns.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, returns.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	rr, err := h.service.CreateReturnRequest(r.Context(), p.UserID, returns.CreateInput{
		OrderID:       req.OrderID,
		Items:         items,
		Reason:        req.Reason,
		ReasonDetails: req.ReasonDetails,
		Images:        req.Images,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReturnResponse(rr))
}

// ListMine はログインユーザーの返品申請を返す。
// GET /returns/my-returns
func (h *ReturnHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListMyReturns(r.Context(), p.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]returnResponse, 0, len(list))
	for _, rr := range list {
		resp = append(resp, toReturnResponse(rr))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Cancel は審査前の返品申請を取り消す。
// PUT /returns/{id}/cancel
func (h *ReturnHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	rr, err := h.service.CancelReturnRequest(r.Context(), p.UserID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReturnResponse(rr))
}

// AttachTracking は承認済み返品の返送追跡番号を登録する。
// PUT /returns/{id}/tracking
func (h *ReturnHandler) AttachTracking(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req attachTrackingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rr, err := h.service.AttachTracking(r.Context(), p.UserID, chi.URLParam(r, "id"), req.TrackingNumber)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReturnResponse(rr))
}

// UploadImages はマルチパートの証拠画像を保存し、URLを返す。
// POST /returns/upload-images （フィールド名: images）
func (h *ReturnHandler) UploadImages(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			handleServiceError(w, model.NewValidationError("アップロードサイズが上限を超えています。"))
			return
		}
		handleServiceError(w, model.NewValidationError("マルチパート形式のリクエストを送信してください。"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["images"]
	files := make([]returns.EvidenceFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			handleServiceError(w, fmt.Errorf("アップロードファイルを開けません: %w", err))
			return
		}
		defer f.Close()
		files = append(files, returns.EvidenceFile{Name: fh.Filename, Size: fh.Size, Body: f})
	}

	urls, err := h.service.UploadEvidenceImages(r.Context(), p.UserID, files)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadImagesResponse{URLs: urls})
}

// AdminList は全返品申請を利用者・注文情報付きで返す。
// GET /returns/admin/all?status=
func (h *ReturnHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	list, err := h.service.AdminListReturns(r.Context(), p, model.ReturnStatus(r.URL.Query().Get("status")))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]returnResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toReturnWithRefsResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// AdminUpdate は返品申請のステータス・管理者メモ・返金額を更新する。
// PUT /returns/admin/{id}
func (h *ReturnHandler) AdminUpdate(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req adminUpdateReturnRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rr, err := h.service.AdminUpdateReturn(r.Context(), p, chi.URLParam(r, "id"), returns.AdminUpdateInput{
		Status:       req.Status,
		AdminNotes:   req.AdminNotes,
		RefundAmount: req.RefundAmount,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReturnResponse(rr))
}

// AdminExport は返品申請一覧をxlsxファイルとして返す。
// GET /returns/admin/export?status=
func (h *ReturnHandler) AdminExport(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	// 書き出し失敗時にJSONエラーを返せるよう、先にバッファへ書く
	var buf bytes.Buffer
	if err := h.service.AdminExportReturns(r.Context(), p, model.ReturnStatus(r.URL.Query().Get("status")), &buf); err != nil {
		handleServiceError(w, err)
		return
	}

	filename := fmt.Sprintf("iadeler-%s.xlsx", h.now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write export", slog.String("error", err.Error()))
	}
}

