package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"southwinds.dev/cryptosvc"
)

var keysCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage key lifecycle: generate, rotate, deprecate, inspect",
}

var keyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key",
	Long:  "Generate fresh key material under the given namespace and algorithm. The new key starts Active.",
	RunE:  runKeyGenerate,
}

var keyRotateCmd = &cobra.Command{
	Use:   "rotate <key-id>",
	Short: "Rotate an Active key to a new version",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeyRotate,
}

var keyDeprecateCmd = &cobra.Command{
	Use:   "deprecate <key-id>",
	Short: "Deprecate an Active key",
	Long:  "Transition a key to Deprecated: it remains usable for decrypt/verify but not for encrypt/new-use sign.",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeyDeprecate,
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete <key-id>",
	Short: "Permanently remove a key's record from the store",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeyDelete,
}

var keyInfoCmd = &cobra.Command{
	Use:   "info <key-id>",
	Short: "Show a key's metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeyInfo,
}

var keyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List key identifiers, optionally filtered by namespace",
	RunE:  runKeyList,
}

var (
	genNamespace string
	genAlgorithm string
	genValidity  time.Duration
	genOwner     string
	genOps       []string

	listNamespace string
	jsonOutput    bool
)

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keyGenerateCmd, keyRotateCmd, keyDeprecateCmd, keyDeleteCmd, keyInfoCmd, keyListCmd)

	keyGenerateCmd.Flags().StringVar(&genNamespace, "namespace", "default", "namespace the new key belongs to")
	keyGenerateCmd.Flags().StringVar(&genAlgorithm, "algorithm", string(cryptosvc.AlgAES256GCM), "algorithm: "+algorithmChoices())
	keyGenerateCmd.Flags().DurationVar(&genValidity, "validity", 0, "key validity period (defaults to the service default)")
	keyGenerateCmd.Flags().StringVar(&genOwner, "owner", "", "owning service name, for audit/metadata purposes")
	keyGenerateCmd.Flags().StringSliceVar(&genOps, "allow", nil, "comma-separated allowed operations (encrypt,decrypt,sign,verify); empty means all")

	keyListCmd.Flags().StringVar(&listNamespace, "namespace", "", "namespace prefix filter (empty lists every namespace)")

	for _, c := range []*cobra.Command{keyListCmd, keyInfoCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	}
}

func algorithmChoices() string {
	return strings.Join([]string{
		string(cryptosvc.AlgAES128GCM), string(cryptosvc.AlgAES256GCM),
		string(cryptosvc.AlgAES128CBC), string(cryptosvc.AlgAES256CBC),
		string(cryptosvc.AlgRSA2048), string(cryptosvc.AlgRSA3072), string(cryptosvc.AlgRSA4096),
		string(cryptosvc.AlgECDSAP256), string(cryptosvc.AlgECDSAP384), string(cryptosvc.AlgECDSAP521),
	}, "|")
}

func runKeyGenerate(cmd *cobra.Command, args []string) error {
	ops := make([]cryptosvc.Operation, 0, len(genOps))
	for _, o := range genOps {
		ops = append(ops, cryptosvc.Operation(strings.TrimSpace(o)))
	}

	id, err := keySvc.Generate(cmd.Context(), cryptosvc.GenerateParams{
		Namespace:         genNamespace,
		Algorithm:         cryptosvc.Algorithm(genAlgorithm),
		OwnerService:      genOwner,
		Validity:          genValidity,
		AllowedOperations: ops,
	})
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	fmt.Printf("Generated key: %s\n", id.String())
	return nil
}

func runKeyRotate(cmd *cobra.Command, args []string) error {
	oldID, err := cryptosvc.ParseKeyId(args[0])
	if err != nil {
		return fmt.Errorf("invalid key id: %w", err)
	}
	newID, err := keySvc.Rotate(cmd.Context(), oldID)
	if err != nil {
		return fmt.Errorf("failed to rotate key: %w", err)
	}
	fmt.Printf("Rotated %s -> %s\n", oldID.String(), newID.String())
	return nil
}

func runKeyDeprecate(cmd *cobra.Command, args []string) error {
	id, err := cryptosvc.ParseKeyId(args[0])
	if err != nil {
		return fmt.Errorf("invalid key id: %w", err)
	}
	if err := keySvc.Deprecate(cmd.Context(), id); err != nil {
		return fmt.Errorf("failed to deprecate key: %w", err)
	}
	fmt.Printf("Deprecated %s\n", id.String())
	return nil
}

func runKeyDelete(cmd *cobra.Command, args []string) error {
	id, err := cryptosvc.ParseKeyId(args[0])
	if err != nil {
		return fmt.Errorf("invalid key id: %w", err)
	}
	if err := keySvc.Delete(cmd.Context(), id); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	fmt.Printf("Deleted %s\n", id.String())
	return nil
}

func runKeyInfo(cmd *cobra.Command, args []string) error {
	id, err := cryptosvc.ParseKeyId(args[0])
	if err != nil {
		return fmt.Errorf("invalid key id: %w", err)
	}
	meta, err := keySvc.GetMetadata(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to get key metadata: %w", err)
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(metadataView(meta))
	}

	fmt.Printf("Key ID:     %s\n", meta.ID.String())
	fmt.Printf("Algorithm:  %s\n", meta.Algorithm)
	fmt.Printf("Type:       %s\n", meta.Type)
	fmt.Printf("State:      %s\n", meta.State)
	fmt.Printf("Created:    %s\n", meta.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Expires:    %s\n", meta.ExpiresAt.Format(time.RFC3339))
	if meta.RotatedAt != nil {
		fmt.Printf("Rotated at: %s\n", meta.RotatedAt.Format(time.RFC3339))
	}
	if meta.PreviousVersionID != nil {
		fmt.Printf("Rotated from: %s\n", meta.PreviousVersionID.String())
	}
	if meta.OwnerService != "" {
		fmt.Printf("Owner:      %s\n", meta.OwnerService)
	}
	if len(meta.AllowedOperations) > 0 {
		ops := make([]string, len(meta.AllowedOperations))
		for i, op := range meta.AllowedOperations {
			ops[i] = string(op)
		}
		fmt.Printf("Allowed:    %s\n", strings.Join(ops, ","))
	}
	fmt.Printf("Usage:      %d\n", meta.UsageCount)
	return nil
}

func runKeyList(cmd *cobra.Command, args []string) error {
	ids, err := keySvc.List(cmd.Context(), listNamespace)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if jsonOutput {
		out := make([]string, len(ids))
		for i, id := range ids {
			out[i] = id.String()
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAMESPACE\tUUID\tVERSION")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%s\t%d\n", id.Namespace, id.UUID, id.Version)
	}
	return w.Flush()
}

func metadataView(meta cryptosvc.KeyMetadata) map[string]any {
	view := map[string]any{
		"key_id":      meta.ID.String(),
		"algorithm":   string(meta.Algorithm),
		"type":        string(meta.Type),
		"state":       string(meta.State),
		"created_at":  meta.CreatedAt,
		"expires_at":  meta.ExpiresAt,
		"usage_count": meta.UsageCount,
	}
	if meta.OwnerService != "" {
		view["owner_service"] = meta.OwnerService
	}
	if meta.RotatedAt != nil {
		view["rotated_at"] = *meta.RotatedAt
	}
	if meta.PreviousVersionID != nil {
		view["previous_version_id"] = meta.PreviousVersionID.String()
	}
	return view
}
