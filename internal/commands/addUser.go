package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"roominfo/internal/api"
	"roominfo/internal/config"
)

// AddUser creates a user through the admin API of a running server and
// prints the generated password.
func AddUser(username string, cfg *config.Config) error {
	return addUser(http.DefaultClient, fmt.Sprintf("http://%s/admin/users", cfg.AdminAddr), username, os.Stdout)
}

func addUser(client *http.Client, url, username string, out io.Writer) error {
	reqBody, err := json.Marshal(api.AddUserRequest{Username: username})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var result api.AddUserResponse
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(body, &result) == nil && result.Message != "" {
			return fmt.Errorf("failed to add user (Status: %d): %s", resp.StatusCode, result.Message)
		}
		return fmt.Errorf("failed to add user (Status: %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	_, _ = fmt.Fprintf(out, "\nUser Created Successfully!\n")
	_, _ = fmt.Fprintf(out, "Username:          %s\n", result.Username)
	_, _ = fmt.Fprintf(out, "User ID:           %s\n", result.UserID)
	_, _ = fmt.Fprintf(out, "Password:          %s\n\n", result.Password)
	_, _ = fmt.Fprintln(out, "Please share the password with the user over a secure channel.")
	return nil
}
