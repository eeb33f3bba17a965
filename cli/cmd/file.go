package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"southwinds.dev/cryptosvc"
)

var encryptFileCmd = &cobra.Command{
	Use:   "encrypt-file <key-id> <in> <out>",
	Short: "Seal a file as a FileEnvelope under a key-encrypting key",
	Args:  cobra.ExactArgs(3),
	RunE:  runEncryptFile,
}

var decryptFileCmd = &cobra.Command{
	Use:   "decrypt-file <in> <out>",
	Short: "Open a FileEnvelope, resolving its key-encrypting key automatically",
	Args:  cobra.ExactArgs(2),
	RunE:  runDecryptFile,
}

// sidecarMeta is the human-inspectable companion written next to an
// encrypted file, independent of the binary FileEnvelope header.
type sidecarMeta struct {
	KEKId     string    `yaml:"kek_id"`
	Algorithm string    `yaml:"algorithm"`
	CreatedAt time.Time `yaml:"created_at"`
	Source    string    `yaml:"source_file"`
}

func init() {
	rootCmd.AddCommand(encryptFileCmd, decryptFileCmd)
}

func runEncryptFile(cmd *cobra.Command, args []string) error {
	kekID, err := cryptosvc.ParseKeyId(args[0])
	if err != nil {
		return fmt.Errorf("invalid key id: %w", err)
	}
	inPath, outPath := args[1], args[2]

	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	if err := cryptosvc.EncryptFile(cmd.Context(), keySvc, kekID, out, in); err != nil {
		return fmt.Errorf("encrypt-file failed: %w", err)
	}

	meta, err := keySvc.GetMetadata(cmd.Context(), kekID)
	if err != nil {
		return fmt.Errorf("failed to read kek metadata for sidecar: %w", err)
	}
	sidecar := sidecarMeta{
		KEKId:     kekID.String(),
		Algorithm: string(meta.Algorithm),
		CreatedAt: time.Now(),
		Source:    inPath,
	}
	data, err := yaml.Marshal(sidecar)
	if err != nil {
		return fmt.Errorf("failed to marshal sidecar metadata: %w", err)
	}
	if err := os.WriteFile(outPath+".meta.yaml", data, 0600); err != nil {
		return fmt.Errorf("failed to write sidecar metadata: %w", err)
	}

	fmt.Printf("Encrypted %s -> %s (kek=%s)\n", inPath, outPath, kekID.String())
	return nil
}

func runDecryptFile(cmd *cobra.Command, args []string) error {
	inPath, outPath := args[0], args[1]

	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	if err := cryptosvc.DecryptFile(cmd.Context(), keySvc, out, in); err != nil {
		return fmt.Errorf("decrypt-file failed: %w", err)
	}

	fmt.Printf("Decrypted %s -> %s\n", inPath, outPath)
	return nil
}
