package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"dropforge/cmd/internal/passphrase"
	"dropforge/core"
	"dropforge/core/mintauth"
	"dropforge/crypto"
)

const keystorePassEnv = "DROPFORGE_KEYSTORE_PASS"

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("DROPFORGE_RPC_TOKEN")

func main() {
	args := os.Args[1:]
	var err error
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "generate-key":
		path := "authority.keystore"
		if len(args) > 1 {
			path = args[1]
		}
		generateKey(path)
	case "show-address":
		if len(args) < 2 {
			fmt.Println("Usage: show-address <keystore>")
			return
		}
		showAddress(args[1])
	case "sign-mint":
		if len(args) < 6 {
			fmt.Println("Usage: sign-mint <keystore> <recipient> <class> <rarity> <itemId> [--ttl <minutes>] [--submit]")
			return
		}
		signMint(args[1], args[2], args[3], args[4], args[5], args[6:])
	case "nonce":
		if len(args) < 2 {
			fmt.Println("Usage: nonce <recipient>")
			return
		}
		showNonce(args[1])
	case "minted":
		if len(args) < 2 {
			fmt.Println("Usage: minted <recipient>")
			return
		}
		showMinted(args[1])
	case "status":
		if len(args) < 3 {
			fmt.Println("Usage: status <class> <rarity>")
			return
		}
		showStatus(args[1], args[2])
	case "quota":
		if len(args) < 3 {
			fmt.Println("Usage: quota <class> <rarity>")
			return
		}
		showQuota(args[1], args[2])
	case "set-authority":
		if len(args) < 2 {
			fmt.Println("Usage: set-authority <address>")
			return
		}
		setAuthority(args[1])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func printUsage() {
	fmt.Println("Usage: dropforge-cli [--rpc <url>] <command>")
	fmt.Println("Commands:")
	fmt.Println("  generate-key [path]                         Generate an authority key into an encrypted keystore")
	fmt.Println("  show-address <keystore>                     Print the address for a keystore")
	fmt.Println("  sign-mint <keystore> <recipient> <class> <rarity> <itemId>")
	fmt.Println("                                              Sign a mint instruction (add --submit to send it)")
	fmt.Println("  nonce <recipient>                           Show the recipient's next expected nonce")
	fmt.Println("  minted <recipient>                          List item IDs minted to the recipient")
	fmt.Println("  status <class> <rarity>                     Show the group's sequence cursor")
	fmt.Println("  quota <class> <rarity>                      Show the group's quota")
	fmt.Println("  set-authority <address>                     Set the mint authority (requires DROPFORGE_RPC_TOKEN)")
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8645"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func generateKey(path string) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		panic(err)
	}
	pass, err := passphrase.NewSource(keystorePassEnv).Get()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := crypto.SaveToKeystore(path, key, pass); err != nil {
		panic(fmt.Sprintf("Failed to save keystore %s: %v", path, err))
	}
	fmt.Printf("Generated new key and saved to %s\n", path)
	fmt.Printf("Your public address is: %s\n", key.PubKey().Address().String())
}

func showAddress(path string) {
	key, err := loadKey(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(key.PubKey().Address().String())
}

func signMint(keystorePath, recipient, class, rarity, itemIDArg string, rest []string) {
	itemID, err := strconv.ParseUint(itemIDArg, 10, 64)
	if err != nil {
		fmt.Println("Error: Invalid item ID.")
		return
	}
	class = strings.ToLower(strings.TrimSpace(class))
	rarity = strings.ToLower(strings.TrimSpace(rarity))
	if class == "" || rarity == "" {
		fmt.Println("Error: class and rarity are required.")
		return
	}
	ttl := 60 * time.Minute
	submit := false
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--ttl":
			if i+1 >= len(rest) {
				fmt.Println("Error: missing value for --ttl")
				return
			}
			minutes, err := strconv.Atoi(rest[i+1])
			if err != nil || minutes <= 0 {
				fmt.Println("Error: invalid --ttl value")
				return
			}
			ttl = time.Duration(minutes) * time.Minute
			i++
		case "--submit":
			submit = true
		default:
			fmt.Printf("Unknown flag: %s\n", rest[i])
			return
		}
	}

	if _, err := crypto.DecodeAddress(strings.TrimSpace(recipient)); err != nil {
		fmt.Printf("Error: invalid recipient: %v\n", err)
		return
	}

	key, err := loadKey(keystorePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var nonceResult struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := call("mint_currentNonce", &nonceResult, false, map[string]interface{}{"recipient": recipient}); err != nil {
		fmt.Printf("Error fetching nonce: %v\n", err)
		return
	}

	ins := mintauth.Instruction{
		Recipient: strings.TrimSpace(recipient),
		Class:     class,
		Rarity:    rarity,
		ItemID:    itemID,
		Nonce:     nonceResult.Nonce,
		Deadline:  time.Now().Add(ttl).Unix(),
		ChainID:   chainID(),
	}
	sig, err := mintauth.Sign(ins, key)
	if err != nil {
		fmt.Printf("Error signing instruction: %v\n", err)
		return
	}
	sigHex := "0x" + hex.EncodeToString(sig)

	encoded, err := json.MarshalIndent(ins, "", "  ")
	if err != nil {
		panic(err)
	}
	fmt.Println(string(encoded))
	fmt.Printf("Signature: %s\n", sigHex)

	if submit {
		var result struct {
			Digest string `json:"digest"`
			ItemID uint64 `json:"itemId"`
		}
		if err := call("mint_submitInstruction", &result, false, ins, sigHex); err != nil {
			fmt.Printf("Error submitting instruction: %v\n", err)
			return
		}
		fmt.Printf("Mint accepted: item %d digest %s\n", result.ItemID, result.Digest)
	}
}

func showNonce(recipient string) {
	var result struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := call("mint_currentNonce", &result, false, map[string]interface{}{"recipient": recipient}); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Next nonce for %s: %d\n", recipient, result.Nonce)
}

func showMinted(recipient string) {
	var result struct {
		Items []uint64 `json:"items"`
	}
	if err := call("mint_minted", &result, false, map[string]interface{}{"recipient": recipient}); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(result.Items) == 0 {
		fmt.Printf("No items minted to %s\n", recipient)
		return
	}
	fmt.Printf("Items minted to %s:\n", recipient)
	for _, id := range result.Items {
		fmt.Printf("  %d\n", id)
	}
}

func showStatus(class, rarity string) {
	var result struct {
		Exists    bool   `json:"exists"`
		Finalized bool   `json:"finalized"`
		Position  uint64 `json:"position"`
		Length    uint64 `json:"length"`
		Expected  uint64 `json:"expected"`
	}
	if err := call("sequence_status", &result, false, map[string]interface{}{"class": class, "rarity": rarity}); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if !result.Exists {
		fmt.Printf("No sequence for %s/%s\n", class, rarity)
		return
	}
	fmt.Printf("Sequence for %s/%s:\n", class, rarity)
	fmt.Printf("  Finalized: %t\n", result.Finalized)
	fmt.Printf("  Position:  %d\n", result.Position)
	fmt.Printf("  Length:    %d (expected %d)\n", result.Length, result.Expected)
}

func showQuota(class, rarity string) {
	var result struct {
		Total     uint64 `json:"total"`
		Minted    uint64 `json:"minted"`
		Limited   bool   `json:"limited"`
		Remaining uint64 `json:"remaining"`
	}
	if err := call("catalog_quota", &result, false, map[string]interface{}{"class": class, "rarity": rarity}); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Quota for %s/%s:\n", class, rarity)
	fmt.Printf("  Minted: %d\n", result.Minted)
	if result.Limited {
		fmt.Printf("  Total:     %d\n", result.Total)
		fmt.Printf("  Remaining: %d\n", result.Remaining)
	} else {
		fmt.Println("  Total:     unlimited")
	}
}

func setAuthority(address string) {
	var result struct {
		OK bool `json:"ok"`
	}
	if err := call("mint_setAuthority", &result, true, map[string]interface{}{"address": address}); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Mint authority set to %s\n", address)
}

func chainID() uint64 {
	if v := strings.TrimSpace(os.Getenv("DROPFORGE_CHAIN_ID")); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return core.DefaultChainID
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	pass, err := passphrase.NewSource(keystorePassEnv).Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("unable to decrypt keystore %s: %w", path, err)
	}
	return key, nil
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func call(method string, out interface{}, requireAuth bool, params ...interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth {
		if strings.TrimSpace(rpcAuthToken) == "" {
			return fmt.Errorf("privileged RPC call requires DROPFORGE_RPC_TOKEN to be set")
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("error from node: %s", decoded.Error.Message)
	}
	if out != nil && len(decoded.Result) > 0 {
		return json.Unmarshal(decoded.Result, out)
	}
	return nil
}
