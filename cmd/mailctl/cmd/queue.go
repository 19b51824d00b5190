package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// queueCmd represents the queue command
var queueCmd = &cobra.Command{
	Use:   "queue [zone]",
	Short: "Show queue statistics for a sending zone",
	Long: `Fetch the current queued/deferred/processed counters for a sending zone,
including the per-destination-domain breakdown.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		zone := args[0]
		resp, err := makeRequest("GET", "/queue/"+zone, nil)
		if err != nil {
			return fmt.Errorf("HTTP request failed: %w", err)
		}
		if resp.StatusCode != 200 {
			return responseError(resp)
		}

		out, err := readJSON(resp)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(out)
			return nil
		}
		fmt.Printf("Zone %s (since %v)\n", zone, out["started"])
		fmt.Printf("  queued:    %v\n", out["queued"])
		fmt.Printf("  deferred:  %v\n", out["deferred"])
		fmt.Printf("  processed: %v\n", out["processed"])
		if domains, ok := out["domains"].([]any); ok && len(domains) > 0 {
			fmt.Println("  domains:")
			for _, d := range domains {
				if m, ok := d.(map[string]any); ok {
					fmt.Printf("    %-30v queued=%v deferred=%v\n", m["domain"], m["queued"], m["deferred"])
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
}
