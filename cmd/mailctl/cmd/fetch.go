package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var fetchClient string

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch [instance] [id]",
	Short: "Stream a stored message body to stdout",
	Long: `Fetch the raw RFC 822 bytes of a stored message by id. The instance
identifier must match the running apiserver; it is printed at startup.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, id := args[0], args[1]
		resp, err := makeRequest("GET", fmt.Sprintf("/fetch/%s/%s/%s", instance, fetchClient, id), nil)
		if err != nil {
			return fmt.Errorf("HTTP request failed: %w", err)
		}
		if resp.StatusCode != 200 {
			return responseError(resp)
		}
		defer resp.Body.Close()

		if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
			return fmt.Errorf("stream interrupted: %w", err)
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchClient, "client", "mailctl", "client identity to report")
	rootCmd.AddCommand(fetchCmd)
}
