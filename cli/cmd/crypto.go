package cmd

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"southwinds.dev/cryptosvc"
	"southwinds.dev/cryptosvc/internal/crypto"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt <key-id>",
	Short: "Encrypt stdin under a key, printing base64 ciphertext/iv/tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runEncrypt,
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt <key-id>",
	Short: "Decrypt a base64 ciphertext produced by encrypt, writing plaintext to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecrypt,
}

var signCmd = &cobra.Command{
	Use:   "sign <key-id>",
	Short: "Sign stdin under a private key, printing a base64 signature",
	Args:  cobra.ExactArgs(1),
	RunE:  runSign,
}

var verifyCmd = &cobra.Command{
	Use:   "verify <key-id> <signature-base64>",
	Short: "Verify stdin against a base64 signature under a key",
	Args:  cobra.ExactArgs(2),
	RunE:  runVerify,
}

var (
	cipherB64 string
	ivB64     string
	tagB64    string
	aadB64    string
)

func init() {
	rootCmd.AddCommand(encryptCmd, decryptCmd, signCmd, verifyCmd)

	encryptCmd.Flags().StringVar(&aadB64, "aad-base64", "", "additional authenticated data, base64-encoded")
	decryptCmd.Flags().StringVar(&cipherB64, "ciphertext-base64", "", "ciphertext to decrypt, base64-encoded (required)")
	decryptCmd.Flags().StringVar(&ivB64, "iv-base64", "", "IV, base64-encoded")
	decryptCmd.Flags().StringVar(&tagB64, "tag-base64", "", "GCM tag, base64-encoded (omit for CBC/RSA)")
	decryptCmd.Flags().StringVar(&aadB64, "aad-base64", "", "additional authenticated data, base64-encoded")
	_ = decryptCmd.MarkFlagRequired("ciphertext-base64")
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	id, err := cryptosvc.ParseKeyId(args[0])
	if err != nil {
		return fmt.Errorf("invalid key id: %w", err)
	}
	plaintext, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}
	aad, err := decodeOptionalBase64(aadB64)
	if err != nil {
		return fmt.Errorf("invalid aad: %w", err)
	}

	result, err := encSvc.Encrypt(cmd.Context(), id, plaintext, aad)
	if err != nil {
		return fmt.Errorf("encrypt failed: %w", err)
	}

	fmt.Printf("ciphertext: %s\n", base64.StdEncoding.EncodeToString(result.Ciphertext))
	if len(result.IV) > 0 {
		fmt.Printf("iv:         %s\n", base64.StdEncoding.EncodeToString(result.IV))
	}
	if len(result.Tag) > 0 {
		fmt.Printf("tag:        %s\n", base64.StdEncoding.EncodeToString(result.Tag))
	}
	return nil
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	id, err := cryptosvc.ParseKeyId(args[0])
	if err != nil {
		return fmt.Errorf("invalid key id: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(cipherB64)
	if err != nil {
		return fmt.Errorf("invalid ciphertext: %w", err)
	}
	iv, err := decodeOptionalBase64(ivB64)
	if err != nil {
		return fmt.Errorf("invalid iv: %w", err)
	}
	tag, err := decodeOptionalBase64(tagB64)
	if err != nil {
		return fmt.Errorf("invalid tag: %w", err)
	}
	aad, err := decodeOptionalBase64(aadB64)
	if err != nil {
		return fmt.Errorf("invalid aad: %w", err)
	}

	plaintext, err := encSvc.Decrypt(cmd.Context(), id, cryptosvc.EncryptResult{Ciphertext: ciphertext, IV: iv, Tag: tag}, aad)
	if err != nil {
		return fmt.Errorf("decrypt failed: %w", err)
	}
	_, err = os.Stdout.Write(plaintext)
	return err
}

func runSign(cmd *cobra.Command, args []string) error {
	id, err := cryptosvc.ParseKeyId(args[0])
	if err != nil {
		return fmt.Errorf("invalid key id: %w", err)
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}
	sig, err := sigSvc.Sign(cmd.Context(), id, data)
	if err != nil {
		return fmt.Errorf("sign failed: %w", err)
	}
	fmt.Println(base64.StdEncoding.EncodeToString(sig))
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	id, err := cryptosvc.ParseKeyId(args[0])
	if err != nil {
		return fmt.Errorf("invalid key id: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}

	outcome, err := sigSvc.Verify(cmd.Context(), id, data, sig)
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}
	if outcome == crypto.VerifyValid {
		fmt.Println("valid")
		return nil
	}
	fmt.Println("invalid")
	return fmt.Errorf("signature invalid")
}

func decodeOptionalBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
