package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"questward/internal/types"
)

// Upstream API retcodes. Anything not listed here is treated as transient.
const (
	retOK                = 0
	retAlreadyDone       = -5003 // task already completed today
	retInvalidCredential = -100
	retAccountBanned     = -3101
	retAccountNotFound   = -1002
)

// apiEnvelope is the upstream service's standard response wrapper.
type apiEnvelope struct {
	Retcode int             `json:"retcode"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// dailyNotesPayload mirrors the upstream daily-notes telemetry body.
type dailyNotesPayload struct {
	CurrentResin        int    `json:"current_resin"`
	MaxResin            int    `json:"max_resin"`
	CurrentHomeCoin     int    `json:"current_home_coin"`
	MaxHomeCoin         int    `json:"max_home_coin"`
	FinishedTaskNum     int    `json:"finished_task_num"`
	TotalTaskNum        int    `json:"total_task_num"`
	IsExtraTaskRewarded bool   `json:"is_extra_task_reward_received"`
	RemainWeeklyDiscNum int    `json:"remain_resin_discount_num"`
	Transformer         struct {
		Obtained     bool `json:"obtained"`
		RecoveryTime struct {
			Day     int  `json:"Day"`
			Hour    int  `json:"Hour"`
			Minute  int  `json:"Minute"`
			Second  int  `json:"Second"`
			Reached bool `json:"reached"`
		} `json:"recovery_time"`
	} `json:"transformer"`
	Expeditions []struct {
		Status        string `json:"status"`
		RemainedTime  string `json:"remained_time"`
	} `json:"expeditions"`
}

// taskResultPayload mirrors the upstream task execution result body.
type taskResultPayload struct {
	Detail string `json:"detail"`
}

// Transport executes per-account operations against one upstream entry
// point: the service itself (direct) or a proxy gateway fronting it.
type Transport struct {
	name    string
	baseURL string
	client  *BaseClient
	logger  *slog.Logger
}

var _ types.Transport = (*Transport)(nil)

// NewDirectTransport creates the transport that talks to the upstream
// service without a gateway.
func NewDirectTransport(baseURL string, client *BaseClient, logger *slog.Logger) *Transport {
	return newTransport("direct", baseURL, client, logger)
}

// NewGatewayTransport creates a transport that proxies every request through
// the named gateway.
func NewGatewayTransport(name, endpoint string, client *BaseClient, logger *slog.Logger) *Transport {
	return newTransport(name, endpoint, client, logger)
}

func newTransport(name, baseURL string, client *BaseClient, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger.With("transport", name),
	}
}

// Name identifies the transport in logs and run stats.
func (t *Transport) Name() string { return t.name }

// PerformTask executes the task-specific operation for the account. Account-
// terminal upstream retcodes are mapped to distinguished AppError codes so the
// worker can tell them apart from transient gateway failures.
func (t *Transport) PerformTask(ctx context.Context, account *types.Account, kind types.TaskKind) (*types.TaskResult, error) {
	endpoint, err := taskEndpoint(kind)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{
		"uid":    account.ExternalUID,
		"region": string(account.Region),
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode task request", err)
	}

	env, err := t.call(ctx, http.MethodPost, endpoint, nil, body)
	if err != nil {
		return nil, err
	}
	if err := t.checkRetcode(account, env); err != nil {
		return nil, err
	}

	result := &types.TaskResult{
		AccountID: account.ID,
		UserID:    account.UserID,
		Kind:      kind,
	}
	if env.Retcode == retAlreadyDone {
		// Nothing to deliver; the task was completed earlier today.
		return result, nil
	}

	var payload taskResultPayload
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "malformed task result payload", err)
		}
	}
	result.Message = payload.Detail
	return result, nil
}

// FetchTelemetry retrieves a fresh daily-notes snapshot for the account.
func (t *Transport) FetchTelemetry(ctx context.Context, account *types.Account) (*types.Snapshot, error) {
	query := url.Values{}
	query.Set("uid", account.ExternalUID)
	query.Set("region", string(account.Region))

	env, err := t.call(ctx, http.MethodGet, "/api/daily_notes", query, nil)
	if err != nil {
		return nil, err
	}
	if err := t.checkRetcode(account, env); err != nil {
		return nil, err
	}

	var payload dailyNotesPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "malformed daily notes payload", err)
	}

	snap := &types.Snapshot{
		ExternalUID:              account.ExternalUID,
		FetchedAt:                time.Now().UTC(),
		CurrentResin:             payload.CurrentResin,
		MaxResin:                 payload.MaxResin,
		CurrentRealmCurrency:     payload.CurrentHomeCoin,
		MaxRealmCurrency:         payload.MaxHomeCoin,
		CompletedCommissions:     payload.FinishedTaskNum,
		TotalCommissions:         payload.TotalTaskNum,
		CommissionRewardDone:     payload.IsExtraTaskRewarded,
		RemainingWeeklyDiscounts: payload.RemainWeeklyDiscNum,
		TransformerObtained:      payload.Transformer.Obtained,
	}
	if payload.Transformer.Obtained && !payload.Transformer.RecoveryTime.Reached {
		rt := payload.Transformer.RecoveryTime
		snap.TransformerRecovery = time.Duration(rt.Day)*24*time.Hour +
			time.Duration(rt.Hour)*time.Hour +
			time.Duration(rt.Minute)*time.Minute +
			time.Duration(rt.Second)*time.Second
	}
	for _, e := range payload.Expeditions {
		exp := types.Expedition{Status: types.ExpeditionState(e.Status)}
		if secs, parseErr := time.ParseDuration(e.RemainedTime + "s"); parseErr == nil {
			exp.RemainingTime = secs
		}
		snap.Expeditions = append(snap.Expeditions, exp)
	}
	return snap, nil
}

// call issues one request through the BaseClient and decodes the envelope.
func (t *Transport) call(ctx context.Context, method, endpoint string, query url.Values, body []byte) (*apiEnvelope, error) {
	u := t.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = strings.NewReader(string(body))
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build upstream request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("upstream returned status %d", resp.StatusCode),
			nil,
		)
	}

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "malformed upstream envelope", err)
	}
	return &env, nil
}

// checkRetcode maps upstream retcodes to the error taxonomy. retOK and
// retAlreadyDone pass through; the terminal retcodes become distinguished
// account errors; everything else is transient.
func (t *Transport) checkRetcode(account *types.Account, env *apiEnvelope) error {
	switch env.Retcode {
	case retOK, retAlreadyDone:
		return nil
	case retInvalidCredential:
		return types.NewAppError(
			types.ErrCodeAccountCredentialInvalid,
			fmt.Sprintf("credential rejected for uid %s: %s", account.ExternalUID, env.Message),
			nil,
		)
	case retAccountBanned:
		return types.NewAppError(
			types.ErrCodeAccountBanned,
			fmt.Sprintf("account %s suspended upstream: %s", account.ExternalUID, env.Message),
			nil,
		)
	case retAccountNotFound:
		return types.NewAppError(
			types.ErrCodeAccountNotFoundUpstream,
			fmt.Sprintf("account %s not found upstream: %s", account.ExternalUID, env.Message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("upstream retcode %d: %s", env.Retcode, env.Message),
			nil,
		)
	}
}

// taskEndpoint maps a task kind to its upstream endpoint.
func taskEndpoint(kind types.TaskKind) (string, error) {
	switch kind {
	case types.TaskCheckIn:
		return "/api/sign", nil
	case types.TaskRedeemPoints:
		return "/api/redeem/points", nil
	case types.TaskRedeemCodes:
		return "/api/redeem/codes", nil
	}
	return "", types.NewAppError(
		types.ErrCodeInternalUnexpected,
		fmt.Sprintf("task kind %s has no upstream endpoint", kind),
		nil,
	)
}
