package handler

import (
	"context"
	"io"

	"github.com/hitoshi/bijou/internal/auth"
	"github.com/hitoshi/bijou/internal/model"
	"github.com/hitoshi/bijou/internal/order"
	"github.com/hitoshi/bijou/internal/returns"
	"github.com/hitoshi/bijou/internal/user"
)

// --- モック ---

type mockAccountService struct {
	registerFn func(ctx context.Context, in user.RegisterInput) (*user.AuthResult, error)
	loginFn    func(ctx context.Context, email, password string) (*user.AuthResult, error)
}

func (m *mockAccountService) Register(ctx context.Context, in user.RegisterInput) (*user.AuthResult, error) {
	return m.registerFn(ctx, in)
}

func (m *mockAccountService) Login(ctx context.Context, email, password string) (*user.AuthResult, error) {
	return m.loginFn(ctx, email, password)
}

type mockGoogleSignIn struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*auth.SignInResult, error)
}

func (m *mockGoogleSignIn) GetLoginURL(state string) string { return m.getLoginURLFn(state) }

func (m *mockGoogleSignIn) HandleCallback(ctx context.Context, code string) (*auth.SignInResult, error) {
	return m.handleCallbackFn(ctx, code)
}

type mockUserService struct {
	getProfileFn    func(ctx context.Context, userID string) (*model.User, error)
	updateProfileFn func(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error)
	requestCodeFn   func(ctx context.Context, userID string) error
	confirmFn       func(ctx context.Context, userID, code, newPassword string) error
}

func (m *mockUserService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	return m.getProfileFn(ctx, userID)
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error) {
	return m.updateProfileFn(ctx, userID, in)
}

func (m *mockUserService) RequestPasswordChange(ctx context.Context, userID string) error {
	return m.requestCodeFn(ctx, userID)
}

func (m *mockUserService) ConfirmPasswordChange(ctx context.Context, userID, code, newPassword string) error {
	return m.confirmFn(ctx, userID, code, newPassword)
}

type mockCatalogService struct {
	listProductsFn  func(ctx context.Context, filter model.ProductFilter) ([]*model.Product, error)
	getProductFn    func(ctx context.Context, id string) (*model.Product, error)
	listCountriesFn func(ctx context.Context) ([]*model.Country, error)
	getCountryFn    func(ctx context.Context, code string) (*model.Country, error)
}

func (m *mockCatalogService) ListProducts(ctx context.Context, filter model.ProductFilter) ([]*model.Product, error) {
	return m.listProductsFn(ctx, filter)
}

func (m *mockCatalogService) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	return m.getProductFn(ctx, id)
}

func (m *mockCatalogService) ListCountries(ctx context.Context) ([]*model.Country, error) {
	return m.listCountriesFn(ctx)
}

func (m *mockCatalogService) GetCountry(ctx context.Context, code string) (*model.Country, error) {
	return m.getCountryFn(ctx, code)
}

type mockOrderService struct {
	createOrderFn    func(ctx context.Context, userID string, in order.CreateInput) (*model.Order, error)
	getOrderFn       func(ctx context.Context, orderID string, requester auth.Principal) (*model.OrderWithOwner, error)
	listMyOrdersFn   func(ctx context.Context, userID string) ([]*model.Order, error)
	listAllOrdersFn  func(ctx context.Context, status model.OrderStatus) ([]model.OrderWithOwner, error)
	updateStatusFn   func(ctx context.Context, orderID string, status model.OrderStatus) (*model.Order, error)
	createShipmentFn func(ctx context.Context, orderID string) (*model.Order, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, userID string, in order.CreateInput) (*model.Order, error) {
	return m.createOrderFn(ctx, userID, in)
}

func (m *mockOrderService) GetOrder(ctx context.Context, orderID string, requester auth.Principal) (*model.OrderWithOwner, error) {
	return m.getOrderFn(ctx, orderID, requester)
}

func (m *mockOrderService) ListMyOrders(ctx context.Context, userID string) ([]*model.Order, error) {
	return m.listMyOrdersFn(ctx, userID)
}

func (m *mockOrderService) ListAllOrders(ctx context.Context, status model.OrderStatus) ([]model.OrderWithOwner, error) {
	return m.listAllOrdersFn(ctx, status)
}

func (m *mockOrderService) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) (*model.Order, error) {
	return m.updateStatusFn(ctx, orderID, status)
}

func (m *mockOrderService) CreateShipment(ctx context.Context, orderID string) (*model.Order, error) {
	return m.createShipmentFn(ctx, orderID)
}

type mockPaymentService struct {
	initiateFn    func(ctx context.Context, userID string, in order.PaymentInput) (*order.PaymentSession, error)
	createOrderFn func(ctx context.Context, userID, merchantOID string, in order.CreateInput) (*model.Order, error)
	callbackFn    func(ctx context.Context, in order.CallbackInput) string
	statusFn      func(ctx context.Context, merchantOID, userID string) (*order.PaymentStatus, error)
}

func (m *mockPaymentService) InitiatePayment(ctx context.Context, userID string, in order.PaymentInput) (*order.PaymentSession, error) {
	return m.initiateFn(ctx, userID, in)
}

func (m *mockPaymentService) CreateOrderAfterPaymentInit(ctx context.Context, userID, merchantOID string, in order.CreateInput) (*model.Order, error) {
	return m.createOrderFn(ctx, userID, merchantOID, in)
}

func (m *mockPaymentService) ApplyPaymentCallback(ctx context.Context, in order.CallbackInput) string {
	return m.callbackFn(ctx, in)
}

func (m *mockPaymentService) CheckPaymentStatus(ctx context.Context, merchantOID, userID string) (*order.PaymentStatus, error) {
	return m.statusFn(ctx, merchantOID, userID)
}

type mockReturnService struct {
	createFn      func(ctx context.Context, userID string, in returns.CreateInput) (*model.ReturnRequest, error)
	listMineFn    func(ctx context.Context, userID string) ([]*model.ReturnRequest, error)
	cancelFn      func(ctx context.Context, userID, returnID string) (*model.ReturnRequest, error)
	trackingFn    func(ctx context.Context, userID, returnID, trackingNumber string) (*model.ReturnRequest, error)
	uploadFn      func(ctx context.Context, userID string, files []returns.EvidenceFile) ([]string, error)
	adminListFn   func(ctx context.Context, requester auth.Principal, status model.ReturnStatus) ([]model.ReturnRequestWithRefs, error)
	adminUpdateFn func(ctx context.Context, requester auth.Principal, returnID string, in returns.AdminUpdateInput) (*model.ReturnRequest, error)
	exportFn      func(ctx context.Context, requester auth.Principal, status model.ReturnStatus, w io.Writer) error
}

func (m *mockReturnService) CreateReturnRequest(ctx context.Context, userID string, in returns.CreateInput) (*model.ReturnRequest, error) {
	return m.createFn(ctx, userID, in)
}

func (m *mockReturnService) ListMyReturns(ctx context.Context, userID string) ([]*model.ReturnRequest, error) {
	return m.listMineFn(ctx, userID)
}

func (m *mockReturnService) CancelReturnRequest(ctx context.Context, userID, returnID string) (*model.ReturnRequest, error) {
	return m.cancelFn(ctx, userID, returnID)
}

func (m *mockReturnService) AttachTracking(ctx context.Context, userID, returnID, trackingNumber string) (*model.ReturnRequest, error) {
	return m.trackingFn(ctx, userID, returnID, trackingNumber)
}

func (m *mockReturnService) UploadEvidenceImages(ctx context.Context, userID string, files []returns.EvidenceFile) ([]string, error) {
	return m.uploadFn(ctx, userID, files)
}

func (m *mockReturnService) AdminListReturns(ctx context.Context, requester auth.Principal, status model.ReturnStatus) ([]model.ReturnRequestWithRefs, error) {
	return m.adminListFn(ctx, requester, status)
}

func (m *mockReturnService) AdminUpdateReturn(ctx context.Context, requester auth.Principal, returnID string, in returns.AdminUpdateInput) (*model.ReturnRequest, error) {
	return m.adminUpdateFn(ctx, requester, returnID, in)
}

func (m *mockReturnService) AdminExportReturns(ctx context.Context, requester auth.Principal, status model.ReturnStatus, w io.Writer) error {
	return m.exportFn(ctx, requester, status, w)
}
