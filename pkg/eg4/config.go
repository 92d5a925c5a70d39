package eg4

import (
	"github.com/levenlabs/go-lflag"
)

// Configured returns a Client wired to lflag. The client is usable only
// after lflag.Configure has run.
func Configured() *Client {
	c := &Client{}

	username := lflag.RequiredString("eg4-username", "EG4 monitor account username")
	password := lflag.RequiredString("eg4-password", "EG4 monitor account password")
	serialNum := lflag.String("eg4-serial", "", "inverter serial number to select (defaults to the first inverter on the account)")
	plantID := lflag.String("eg4-plant", "", "plant ID of the selected inverter")
	baseURL := lflag.String("eg4-base-url", DefaultBaseURL, "base URL of the EG4 monitor API")
	insecure := lflag.Bool("eg4-insecure", false, "skip TLS certificate verification (self-hosted endpoints only)")
	timeout := lflag.Duration("eg4-timeout", 0, "HTTP timeout for EG4 API requests. 0 means the default.")

	lflag.Do(func() {
		c.init(Config{
			Username:           *username,
			Password:           *password,
			SerialNum:          *serialNum,
			PlantID:            *plantID,
			BaseURL:            *baseURL,
			InsecureSkipVerify: *insecure,
			Timeout:            *timeout,
		})
	})
	return c
}
