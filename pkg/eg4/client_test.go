package eg4

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeLoginSuccess answers a login POST with one plant holding one
// inverter and a fresh session cookie.
func writeLoginSuccess(w http.ResponseWriter, session string) {
	http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: session})
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"plants": []map[string]interface{}{
			{
				"plantId": "P1",
				"name":    "Home",
				"inverters": []map[string]interface{}{
					{"serialNum": "SN123", "deviceType": 6},
				},
			},
		},
	})
}

func newTestClient(ts *httptest.Server) *Client {
	return &Client{
		client:   ts.Client(),
		baseURL:  ts.URL,
		username: "user@example.com",
		password: "pass",
	}
}

func TestClient(t *testing.T) {
	t.Run("Login Flow", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/WManage/web/login" {
				require.NoError(t, r.ParseForm())
				assert.Equal(t, "user@example.com", r.Form.Get("account"))
				assert.Equal(t, "pass", r.Form.Get("password"))
				writeLoginSuccess(w, "abc123")
				return
			}
			http.Error(w, "not found", 404)
		}))
		defer ts.Close()

		c := newTestClient(ts)
		require.NoError(t, c.Login(context.Background()))
		assert.Equal(t, "abc123", c.sessionID, "session cookie should be cached")

		inverters := c.Inverters()
		require.Len(t, inverters, 1)
		assert.Equal(t, "SN123", inverters[0].SerialNum)
		assert.Equal(t, "P1", inverters[0].PlantID)
		assert.Equal(t, "Home", inverters[0].PlantName)
		assert.Contains(t, inverters[0].Extra, "deviceType", "unmapped inverter fields land in Extra")

		require.NoError(t, c.SelectInverterIndex(0))
		plantID, serialNum := c.Selection()
		assert.Equal(t, "P1", plantID)
		assert.Equal(t, "SN123", serialNum)
	})

	t.Run("Login Bad Credentials", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false})
		}))
		defer ts.Close()

		c := newTestClient(ts)
		err := c.Login(context.Background())
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr, "rejected login is an AuthError")
	})

	t.Run("Login Missing Session Cookie", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// success body but no Set-Cookie
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"plants": []map[string]interface{}{
					{"plantId": "P1", "name": "Home", "inverters": []map[string]interface{}{{"serialNum": "SN123"}}},
				},
			})
		}))
		defer ts.Close()

		c := newTestClient(ts)
		err := c.Login(context.Background())
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Contains(t, authErr.Message, "JSESSIONID")
	})

	t.Run("Login No Inverters", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc"})
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"plants":  []map[string]interface{}{{"plantId": "P1", "name": "Empty"}},
			})
		}))
		defer ts.Close()

		c := newTestClient(ts)
		err := c.Login(context.Background())
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr, "empty device list is an APIError, not an AuthError")
		assert.Zero(t, apiErr.StatusCode)
	})

	t.Run("Implicit Login", func(t *testing.T) {
		logins := 0
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/WManage/web/login":
				logins++
				writeLoginSuccess(w, "sess1")
			case "/WManage/api/inverter/getInverterRuntime":
				assert.Equal(t, "JSESSIONID=sess1", r.Header.Get("Cookie"))
				json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "serialNum": "SN123", "soc": 72.0})
			default:
				http.Error(w, "not found", 404)
			}
		}))
		defer ts.Close()

		c := newTestClient(ts)
		c.serialNum = "SN123"

		rd, fail, err := c.Runtime(context.Background(), false)
		require.NoError(t, err)
		require.Nil(t, fail)
		assert.Equal(t, 72.0, rd.BatterySOC)
		assert.Equal(t, 1, logins, "first data call should have logged in")
	})

	t.Run("Runtime Capture Extra", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/WManage/web/login":
				writeLoginSuccess(w, "sess1")
			case "/WManage/api/inverter/getInverterRuntime":
				require.NoError(t, r.ParseForm())
				assert.Equal(t, "SN123", r.Form.Get("serialNum"))
				json.NewEncoder(w).Encode(map[string]interface{}{
					"success":    true,
					"serialNum":  "SN123",
					"statusText": "NORMAL",
					"soc":        72.0,
					"ppv":        3150.0,
					"fwCode":     "ABCD-1234",
				})
			default:
				http.Error(w, "not found", 404)
			}
		}))
		defer ts.Close()

		c := newTestClient(ts)
		c.serialNum = "SN123"

		rd, fail, err := c.Runtime(context.Background(), true)
		require.NoError(t, err)
		require.Nil(t, fail)
		assert.Equal(t, "NORMAL", rd.StatusText)
		assert.Equal(t, 3150.0, rd.Ppv)
		require.Len(t, rd.Extra, 1, "only the unmapped field should be captured")
		assert.Equal(t, json.RawMessage(`"ABCD-1234"`), rd.Extra["fwCode"])
	})

	t.Run("Soft Failure", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/WManage/web/login":
				writeLoginSuccess(w, "sess1")
			case "/WManage/api/inverter/getInverterEnergyInfo":
				json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "device offline"})
			default:
				http.Error(w, "not found", 404)
			}
		}))
		defer ts.Close()

		c := newTestClient(ts)
		c.serialNum = "SN123"

		ed, fail, err := c.Energy(context.Background(), false)
		require.NoError(t, err, "success:false is not a transport error")
		require.NotNil(t, fail)
		assert.Nil(t, ed)
		assert.False(t, fail.Success)
		assert.Equal(t, "device offline", fail.ErrorMessage)
	})

	t.Run("Retry On 401", func(t *testing.T) {
		logins := 0
		dataCalls := 0
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/WManage/web/login":
				logins++
				writeLoginSuccess(w, "fresh")
			case "/WManage/api/inverter/getInverterRuntime":
				dataCalls++
				if r.Header.Get("Cookie") != "JSESSIONID=fresh" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "soc": 50.0})
			default:
				http.Error(w, "not found", 404)
			}
		}))
		defer ts.Close()

		c := newTestClient(ts)
		c.serialNum = "SN123"
		c.sessionID = "stale"

		rd, fail, err := c.Runtime(context.Background(), false)
		require.NoError(t, err)
		require.Nil(t, fail)
		assert.Equal(t, 50.0, rd.BatterySOC)
		assert.Equal(t, 1, logins, "exactly one re-login")
		assert.Equal(t, 2, dataCalls, "exactly one retry")
	})

	t.Run("Retry Fails", func(t *testing.T) {
		dataCalls := 0
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/WManage/web/login":
				writeLoginSuccess(w, "fresh")
			case "/WManage/api/inverter/getInverterRuntime":
				dataCalls++
				if dataCalls == 1 {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				w.WriteHeader(http.StatusInternalServerError)
			default:
				http.Error(w, "not found", 404)
			}
		}))
		defer ts.Close()

		c := newTestClient(ts)
		c.serialNum = "SN123"
		c.sessionID = "stale"

		_, _, err := c.Runtime(context.Background(), false)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode, "retry status should surface")
		assert.Equal(t, 2, dataCalls, "no second retry")
	})

	t.Run("Non-401 Fails Immediately", func(t *testing.T) {
		dataCalls := 0
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/WManage/web/login":
				writeLoginSuccess(w, "sess1")
			case "/WManage/api/battery/getBatteryInfo":
				dataCalls++
				w.WriteHeader(http.StatusBadGateway)
			default:
				http.Error(w, "not found", 404)
			}
		}))
		defer ts.Close()

		c := newTestClient(ts)
		c.serialNum = "SN123"

		_, _, err := c.Battery(context.Background(), false)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
		assert.Equal(t, 1, dataCalls, "non-401 statuses are not retried")
	})

	t.Run("No Inverter Selected", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request should be made without a selection")
		}))
		defer ts.Close()

		c := newTestClient(ts)
		_, _, err := c.Runtime(context.Background(), false)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
	})

	t.Run("Select Inverter Validation", func(t *testing.T) {
		c := &Client{}
		var apiErr *APIError
		require.ErrorAs(t, c.SelectInverter("", "SN123"), &apiErr)
		require.ErrorAs(t, c.SelectInverter("P1", ""), &apiErr)
		require.ErrorAs(t, c.SelectInverterIndex(0), &apiErr, "empty device list has no index 0")
		require.NoError(t, c.SelectInverter("P1", "SN123"))
	})

	t.Run("Battery Units", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/WManage/web/login":
				writeLoginSuccess(w, "sess1")
			case "/WManage/api/battery/getBatteryInfo":
				json.NewEncoder(w).Encode(map[string]interface{}{
					"success":          true,
					"remainCapacity":   50.0,
					"fullCapacity":     100.0,
					"totalNumber":      2,
					"totalVoltageText": "52.2",
					"currentText":      "10.5",
					"batteryArray": []map[string]interface{}{
						{"batIndex": 0, "batterySn": "B1", "voltage": 52.1, "soc": 80.0, "ampHourRated": 100.0},
						{"batIndex": 1, "batterySn": "B2", "voltage": 52.3, "soc": 81.0},
					},
				})
			default:
				http.Error(w, "not found", 404)
			}
		}))
		defer ts.Close()

		c := newTestClient(ts)
		c.serialNum = "SN123"

		bd, fail, err := c.Battery(context.Background(), true)
		require.NoError(t, err)
		require.Nil(t, fail)
		assert.Equal(t, 50.0, bd.RemainCapacity)
		assert.Equal(t, 2, bd.TotalNumber)
		require.Len(t, bd.Units, 2)
		assert.Equal(t, "B1", bd.Units[0].BatterySN)
		assert.Equal(t, 52.1, bd.Units[0].Voltage)
		assert.Equal(t, 52.3, bd.Units[1].Voltage)
		assert.Contains(t, bd.Units[0].Extra, "ampHourRated")
		assert.Nil(t, bd.Units[1].Extra)
		assert.Nil(t, bd.Extra, "batteryArray itself is not an extra")
	})

	t.Run("Close Idempotent", func(t *testing.T) {
		c := New(Config{Username: "u", Password: "p"})
		c.Close()
		c.Close()
	})

	t.Run("Login Missing Credentials", func(t *testing.T) {
		c := New(Config{})
		err := c.Login(context.Background())
		var authErr *AuthError
		require.True(t, errors.As(err, &authErr))
	})
}
