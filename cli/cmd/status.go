package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service status: memory protection, store/cache configuration",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("cryptosvc status")
	fmt.Println("=================")
	fmt.Printf("Memory protection: %v\n", coordinator.MemoryProtection())
	fmt.Printf("Store type:        %s\n", viper.GetString("store.type"))
	if viper.GetString("store.type") == "filesystem" {
		fmt.Printf("Store path:        %s\n", viper.GetString("store.path"))
	}
	fmt.Printf("Local cache size:  %d\n", viper.GetInt("cache.local_size"))
	if addr := viper.GetString("cache.redis_addr"); addr != "" {
		fmt.Printf("Remote cache:      %s\n", addr)
	} else {
		fmt.Println("Remote cache:      disabled")
	}
	fmt.Printf("Logging connected: %t\n", logClient.IsConnected())

	ids, err := keySvc.List(cmd.Context(), "")
	if err != nil {
		fmt.Printf("Key count:         ERROR - %v\n", err)
	} else {
		fmt.Printf("Key count:         %d\n", len(ids))
	}
	return nil
}
