package printclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iurnickita/posprint/internal/service/printclient/config"
)

const (
	pathOAuth         = "/oauth/oauth"
	pathPrint         = "/print/index"
	pathPrinterStatus = "/printer/getprintstatus"
	pathSystemTime    = "/system/time"
)

// Коды ошибок провайдера, означающие просроченный или отозванный токен.
var invalidTokenCodes = map[string]bool{
	"18": true,
}

// JSON ответ провайдера
type providerAnswer struct {
	Error            looseString     `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Body             json.RawMessage `json:"body"`
}

type tokenBody struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   looseString `json:"expires_in"`
}

type printBody struct {
	ID       looseString `json:"id"`
	OriginID looseString `json:"origin_id"`
}

type statusBody struct {
	State looseString `json:"state"`
}

type timeAnswer struct {
	Timestamp looseString `json:"timestamp"`
	Body      struct {
		Timestamp looseString `json:"timestamp"`
	} `json:"body"`
}

// looseString принимает и строки, и числа: провайдер присылает оба варианта.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	v := strings.Trim(string(b), `"`)
	if v == "null" {
		v = ""
	}
	*s = looseString(v)
	return nil
}

func (a providerAnswer) failed() bool {
	return a.Error != "" && a.Error != "0"
}

// Состояние принтера
type PrinterState struct {
	State  string `json:"state"`
	Text   string `json:"text"`
	Online bool   `json:"online"`
}

var printerStateText = map[string]string{
	"0": "offline",
	"1": "online",
	"2": "out of paper",
}

type Client struct {
	cfg    config.Config
	http   *resty.Client
	tokens *TokenCache
	now    func() time.Time
	zaplog *zap.Logger
}

// NewClient собирает клиента облачной печати. store - хранилище токена, nil означает память процесса.
func NewClient(cfg config.Config, store TokenStore, zaplog *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Normalize()
	if zaplog == nil {
		zaplog = zap.NewNop()
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	client := &Client{
		cfg:    cfg,
		http:   httpClient,
		now:    time.Now,
		zaplog: zaplog,
	}
	client.tokens = NewTokenCache(store, client.requestToken, zaplog)
	return client, nil
}

func (client *Client) MachineCode() string {
	return client.cfg.MachineCode
}

// Tokens отдает кеш токена клиента.
func (client *Client) Tokens() *TokenCache {
	return client.tokens
}

// PrintReceipt отправляет задание печати и возвращает id задания у провайдера.
// originID - ключ идемпотентности: повтор с тем же originID провайдер считает тем же заданием.
func (client *Client) PrintReceipt(ctx context.Context, machineCode string, content string, originID string) (string, error) {
	token, err := client.tokens.GetToken(ctx)
	if err != nil {
		return "", err
	}
	if machineCode == "" {
		machineCode = client.cfg.MachineCode
	}
	if originID == "" {
		originID = uuid.NewString()
	}

	form, err := client.signedForm(ctx)
	if err != nil {
		return "", err
	}
	form["access_token"] = token
	form["machine_code"] = machineCode
	form["content"] = content
	form["origin_id"] = originID

	answer, err := client.post(ctx, pathPrint, form, ErrProviderPrint)
	if err != nil {
		client.dropRejectedToken(ctx, err)
		return "", err
	}

	var body printBody
	if len(answer.Body) > 0 {
		if err := json.Unmarshal(answer.Body, &body); err != nil {
			return "", &ProviderError{Kind: ErrProviderPrint, Err: err}
		}
	}

	client.zaplog.Info("print job accepted",
		zap.String("origin_id", originID),
		zap.String("task_id", string(body.ID)),
	)
	return string(body.ID), nil
}

// PrinterStatus запрашивает состояние принтера.
func (client *Client) PrinterStatus(ctx context.Context, machineCode string) (PrinterState, error) {
	token, err := client.tokens.GetToken(ctx)
	if err != nil {
		return PrinterState{}, err
	}
	if machineCode == "" {
		machineCode = client.cfg.MachineCode
	}

	form, err := client.signedForm(ctx)
	if err != nil {
		return PrinterState{}, err
	}
	form["access_token"] = token
	form["machine_code"] = machineCode

	answer, err := client.post(ctx, pathPrinterStatus, form, ErrProviderPrint)
	if err != nil {
		client.dropRejectedToken(ctx, err)
		return PrinterState{}, err
	}

	var body statusBody
	if err := json.Unmarshal(answer.Body, &body); err != nil {
		return PrinterState{}, &ProviderError{Kind: ErrProviderPrint, Err: err}
	}

	state := string(body.State)
	text, ok := printerStateText[state]
	if !ok {
		text = "unknown state " + state
	}
	return PrinterState{State: state, Text: text, Online: state == "1"}, nil
}

// requestToken - обмен client_credentials на токен доступа
func (client *Client) requestToken(ctx context.Context) (string, time.Duration, error) {
	form, err := client.signedForm(ctx)
	if err != nil {
		return "", 0, err
	}
	form["grant_type"] = "client_credentials"
	form["scope"] = "all"

	answer, err := client.post(ctx, pathOAuth, form, ErrProviderAuth)
	if err != nil {
		return "", 0, err
	}

	var body tokenBody
	if err := json.Unmarshal(answer.Body, &body); err != nil {
		return "", 0, &ProviderError{Kind: ErrProviderAuth, Err: err}
	}
	expiresIn, err := strconv.ParseInt(string(body.ExpiresIn), 10, 64)
	if err != nil || body.AccessToken == "" || expiresIn <= 0 {
		return "", 0, &ProviderError{Kind: ErrProviderAuth, Description: "malformed token response"}
	}

	return body.AccessToken, time.Duration(expiresIn) * time.Second, nil
}

// signedForm - общие поля подписанного запроса: client_id, id, timestamp, sign
func (client *Client) signedForm(ctx context.Context) (map[string]string, error) {
	timestamp := client.timestamp(ctx)
	sign, err := Sign(client.cfg.ClientID, timestamp, client.cfg.ClientSecret, client.cfg.SignUppercase)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"client_id": client.cfg.ClientID,
		"id":        uuid.NewString(),
		"timestamp": strconv.FormatInt(timestamp, 10),
		"sign":      sign,
	}, nil
}

// timestamp берет время сервера провайдера, при ошибке - локальные часы.
func (client *Client) timestamp(ctx context.Context) int64 {
	local := client.now().Unix()
	if !client.cfg.UseServerTime {
		return local
	}

	req := client.http.R()
	req.Method = http.MethodGet
	req.URL = pathSystemTime
	req.SetContext(ctx)
	resp, err := req.Send()
	if err != nil || resp.IsError() {
		client.zaplog.Debug("server time unavailable, using local clock", zap.Error(err))
		return local
	}

	var answer timeAnswer
	if err := json.Unmarshal(resp.Body(), &answer); err != nil {
		return local
	}
	raw := answer.Timestamp
	if raw == "" {
		raw = answer.Body.Timestamp
	}
	ts, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || ts <= 0 {
		return local
	}
	return ts
}

func (client *Client) post(ctx context.Context, path string, form map[string]string, kind error) (providerAnswer, error) {
	req := client.http.R()
	req.Method = http.MethodPost
	req.URL = path
	req.SetContext(ctx)
	req.SetFormData(form)
	resp, err := req.Send()
	if err != nil {
		return providerAnswer{}, &ProviderError{Kind: ErrTransport, Err: err}
	}

	var answer providerAnswer
	decodeErr := json.Unmarshal(resp.Body(), &answer)

	if resp.IsError() {
		perr := &ProviderError{Kind: ErrTransport, Description: resp.Status()}
		if decodeErr == nil && answer.ErrorDescription != "" {
			perr.Code = string(answer.Error)
			perr.Description = answer.ErrorDescription
		}
		return providerAnswer{}, perr
	}
	if decodeErr != nil {
		return providerAnswer{}, &ProviderError{Kind: kind, Err: decodeErr}
	}
	if answer.failed() {
		client.zaplog.Warn("provider rejected request",
			zap.String("path", path),
			zap.String("code", string(answer.Error)),
			zap.String("description", answer.ErrorDescription),
		)
		return providerAnswer{}, &ProviderError{
			Kind:        kind,
			Code:        string(answer.Error),
			Description: answer.ErrorDescription,
		}
	}
	return answer, nil
}

func (client *Client) dropRejectedToken(ctx context.Context, err error) {
	var perr *ProviderError
	if !errors.As(err, &perr) || !invalidTokenCodes[perr.Code] {
		return
	}
	if err := client.tokens.Invalidate(ctx); err != nil {
		client.zaplog.Warn("token invalidation failed", zap.Error(err))
	}
}
