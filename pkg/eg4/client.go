package eg4

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/eg4monitor/eg4monitor/pkg/common"
	"github.com/eg4monitor/eg4monitor/pkg/log"
	"github.com/eg4monitor/eg4monitor/pkg/types"
)

// DefaultBaseURL is the vendor's production monitor host.
const DefaultBaseURL = "https://monitor.eg4electronics.com"

const (
	loginPath   = "/WManage/web/login"
	runtimePath = "/WManage/api/inverter/getInverterRuntime"
	energyPath  = "/WManage/api/inverter/getInverterEnergyInfo"
	batteryPath = "/WManage/api/battery/getBatteryInfo"
)

const sessionCookie = "JSESSIONID"

// Config carries the credentials and connection settings for a Client.
// SerialNum and PlantID preselect an inverter; leave them empty to pick
// from the device list after login. InsecureSkipVerify disables TLS
// certificate verification and is meant only for self-hosted endpoints.
type Config struct {
	Username string
	Password string

	SerialNum string
	PlantID   string

	BaseURL            string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// Client talks to the EG4 monitor web API. It holds one HTTP connection
// pool, the session cookie from the last login, the inverter list from the
// login response, and the currently selected inverter.
//
// A Client issues one request at a time; concurrent callers are serialized
// on an internal mutex but may still invalidate each other's session via
// the re-login path, so single-flight use is the supported contract.
type Client struct {
	client   *http.Client
	baseURL  string
	username string
	password string

	mu        sync.Mutex
	sessionID string
	inverters []types.Inverter
	plantID   string
	serialNum string
	closed    bool
}

// New returns a Client for the given config. No request is made until
// Login or the first data call.
func New(cfg Config) *Client {
	c := &Client{}
	c.init(cfg)
	return c
}

func (c *Client) init(cfg Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.InsecureSkipVerify {
		c.client = common.InsecureHTTPClient(cfg.Timeout)
	} else {
		c.client = common.HTTPClient(cfg.Timeout)
	}
	c.baseURL = cfg.BaseURL
	c.username = cfg.Username
	c.password = cfg.Password
	c.plantID = cfg.PlantID
	c.serialNum = cfg.SerialNum
}

type loginResponse struct {
	Success bool `json:"success"`
	Plants  []struct {
		PlantID   string            `json:"plantId"`
		Name      string            `json:"name"`
		Inverters []json.RawMessage `json:"inverters"`
	} `json:"plants"`
}

// envelope is the success wrapper every data endpoint shares.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Login authenticates against the monitor API and replaces the session
// cookie and inverter list with the response's. Called automatically by
// the first data call if no session is cached.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login(ctx)
}

// login must be called with c.mu held.
func (c *Client) login(ctx context.Context) error {
	if c.username == "" {
		return &AuthError{Message: "missing username"}
	}
	if c.password == "" {
		return &AuthError{Message: "missing password"}
	}

	data := url.Values{}
	data.Set("account", c.username)
	data.Set("password", c.password)

	req, err := c.newPostFormRequest(ctx, loginPath, data)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Ctx(ctx).ErrorContext(ctx, "login rejected", slog.Int("status", resp.StatusCode))
		return &AuthError{Message: fmt.Sprintf("login failed with status %d, check your credentials", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read login response: %w", err)
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode login response", slog.Any("error", err))
		return fmt.Errorf("decode login response: %w", err)
	}
	if !lr.Success {
		return &AuthError{Message: "login failed, check your credentials"}
	}

	var session string
	for _, ck := range resp.Cookies() {
		if ck.Name == sessionCookie {
			session = ck.Value
			break
		}
	}
	if session == "" {
		return &AuthError{Message: "login response missing " + sessionCookie + " cookie"}
	}

	inverters, err := extractInverters(lr)
	if err != nil {
		return err
	}

	c.sessionID = session
	c.inverters = inverters
	log.Ctx(ctx).DebugContext(ctx, "login success",
		slog.String("username", c.username),
		slog.Int("inverters", len(inverters)),
	)
	return nil
}

func extractInverters(lr loginResponse) ([]types.Inverter, error) {
	var inverters []types.Inverter
	for _, plant := range lr.Plants {
		for _, raw := range plant.Inverters {
			var inv types.Inverter
			if err := json.Unmarshal(raw, &inv); err != nil {
				return nil, fmt.Errorf("decode inverter entry: %w", err)
			}
			inv.PlantID = plant.PlantID
			inv.PlantName = plant.Name
			extra, err := types.ExtraFields(raw, types.InverterKnownFields)
			if err != nil {
				return nil, fmt.Errorf("decode inverter entry: %w", err)
			}
			inv.Extra = extra
			inverters = append(inverters, inv)
		}
	}
	if len(inverters) == 0 {
		return nil, &APIError{Message: "no inverters found for account"}
	}
	return inverters, nil
}

// Inverters returns the device list from the last successful login, in the
// order the vendor reported it. Empty until a login has succeeded.
func (c *Client) Inverters() []types.Inverter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.inverters)
}

// Selection returns the currently selected plant and serial, either empty
// until configured or selected.
func (c *Client) Selection() (plantID, serialNum string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plantID, c.serialNum
}

// SelectInverter makes the given plant/serial pair the target of the data
// calls. Both must be non-empty.
func (c *Client) SelectInverter(plantID, serialNum string) error {
	if plantID == "" || serialNum == "" {
		return &APIError{Message: "inverter selection requires both a plant ID and a serial number"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plantID = plantID
	c.serialNum = serialNum
	return nil
}

// SelectInverterIndex selects by position in the device list from login.
func (c *Client) SelectInverterIndex(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.inverters) {
		return &APIError{Message: fmt.Sprintf("inverter index %d out of range (have %d)", i, len(c.inverters))}
	}
	inv := c.inverters[i]
	c.plantID = inv.PlantID
	c.serialNum = inv.SerialNum
	return nil
}

func (c *Client) newPostFormRequest(ctx context.Context, endpoint string, data url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}

	body := strings.NewReader(data.Encode())
	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// doRequest sends an authenticated form POST and returns the raw body of
// any 200 response; callers interpret the body's success field. A missing
// session triggers a login first. A 401 triggers exactly one re-login and
// one retry; any other non-200, or a non-200 on the retry, is an APIError
// carrying the status. Must be called with c.mu held.
func (c *Client) doRequest(ctx context.Context, path string, form url.Values) ([]byte, error) {
	if c.sessionID == "" {
		if err := c.login(ctx); err != nil {
			return nil, err
		}
	}

	var lastStatus int
	for attempt := 0; attempt < 2; attempt++ {
		req, err := c.newPostFormRequest(ctx, path, form)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Cookie", sessionCookie+"="+c.sessionID)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			log.Ctx(ctx).DebugContext(ctx, "session expired, logging in again")
			c.sessionID = ""
			if err := c.login(ctx); err != nil {
				return nil, err
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastStatus = resp.StatusCode
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("read response: %w", readErr)
		}
		return body, nil
	}
	log.Ctx(ctx).ErrorContext(ctx, "api request failed",
		slog.String("path", path),
		slog.Int("status", lastStatus),
	)
	return nil, &APIError{StatusCode: lastStatus, Message: "request failed"}
}

// dataRequest posts serialNum=<selection> to path and splits the outcome:
// raw body on vendor success, APIResponse on vendor-reported failure,
// error otherwise. Must be called with c.mu held.
func (c *Client) dataRequest(ctx context.Context, path string) ([]byte, *types.APIResponse, error) {
	if c.serialNum == "" {
		return nil, nil, &APIError{Message: "no inverter selected"}
	}

	form := url.Values{}
	form.Set("serialNum", c.serialNum)

	body, err := c.doRequest(ctx, path, form)
	if err != nil {
		return nil, nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		log.Ctx(ctx).DebugContext(ctx, "vendor reported failure",
			slog.String("path", path),
			slog.String("message", env.Error),
		)
		return nil, &types.APIResponse{ErrorMessage: env.Error}, nil
	}
	return body, nil, nil
}

// Runtime fetches the live telemetry snapshot of the selected inverter.
// Exactly one of the three results is meaningful: the record on success, a
// non-nil APIResponse when the vendor answered success:false, or an error.
// captureExtra retains unrecognized response fields on the record.
func (c *Client) Runtime(ctx context.Context, captureExtra bool) (*types.RuntimeData, *types.APIResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	body, fail, err := c.dataRequest(ctx, runtimePath)
	if err != nil || fail != nil {
		return nil, fail, err
	}

	var rd types.RuntimeData
	if err := json.Unmarshal(body, &rd); err != nil {
		return nil, nil, fmt.Errorf("decode runtime data: %w", err)
	}
	if captureExtra {
		if rd.Extra, err = types.ExtraFields(body, types.RuntimeKnownFields); err != nil {
			return nil, nil, err
		}
	}

	log.Ctx(ctx).DebugContext(ctx, "runtime data",
		slog.String("serialNum", c.serialNum),
		slog.Float64("soc", rd.BatterySOC),
		slog.Float64("ppv", rd.Ppv),
		slog.Float64("pToGrid", rd.PToGrid),
		slog.Float64("pToUser", rd.PToUser),
	)
	return &rd, nil, nil
}

// Energy fetches the cumulative energy counters of the selected inverter.
// Result convention matches Runtime.
func (c *Client) Energy(ctx context.Context, captureExtra bool) (*types.EnergyData, *types.APIResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	body, fail, err := c.dataRequest(ctx, energyPath)
	if err != nil || fail != nil {
		return nil, fail, err
	}

	var ed types.EnergyData
	if err := json.Unmarshal(body, &ed); err != nil {
		return nil, nil, fmt.Errorf("decode energy data: %w", err)
	}
	if captureExtra {
		if ed.Extra, err = types.ExtraFields(body, types.EnergyKnownFields); err != nil {
			return nil, nil, err
		}
	}

	log.Ctx(ctx).DebugContext(ctx, "energy data",
		slog.String("serialNum", c.serialNum),
		slog.Float64("todayYieldingKWH", ed.TodayYielding),
		slog.Float64("totalYieldingKWH", ed.TotalYielding),
	)
	return &ed, nil, nil
}

// Battery fetches the aggregate battery state of the selected inverter and
// expands the response's batteryArray into per-module units. Result
// convention matches Runtime.
func (c *Client) Battery(ctx context.Context, captureExtra bool) (*types.BatteryData, *types.APIResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	body, fail, err := c.dataRequest(ctx, batteryPath)
	if err != nil || fail != nil {
		return nil, fail, err
	}

	var bd types.BatteryData
	if err := json.Unmarshal(body, &bd); err != nil {
		return nil, nil, fmt.Errorf("decode battery data: %w", err)
	}

	var arr struct {
		BatteryArray []json.RawMessage `json:"batteryArray"`
	}
	if err := json.Unmarshal(body, &arr); err != nil {
		return nil, nil, fmt.Errorf("decode battery array: %w", err)
	}
	for _, raw := range arr.BatteryArray {
		var unit types.BatteryUnit
		if err := json.Unmarshal(raw, &unit); err != nil {
			return nil, nil, fmt.Errorf("decode battery unit: %w", err)
		}
		if captureExtra {
			if unit.Extra, err = types.ExtraFields(raw, types.BatteryUnitKnownFields); err != nil {
				return nil, nil, err
			}
		}
		bd.Units = append(bd.Units, unit)
	}

	if captureExtra {
		if bd.Extra, err = types.ExtraFields(body, types.BatteryKnownFields); err != nil {
			return nil, nil, err
		}
	}

	log.Ctx(ctx).DebugContext(ctx, "battery data",
		slog.String("serialNum", c.serialNum),
		slog.Float64("remainCapacity", bd.RemainCapacity),
		slog.Float64("fullCapacity", bd.FullCapacity),
		slog.Int("units", len(bd.Units)),
	)
	return &bd, nil, nil
}

// Close releases the client's idle connections. Idempotent, safe to call
// before any request was made. Further calls on a closed client are a
// caller error.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.client.CloseIdleConnections()
}
