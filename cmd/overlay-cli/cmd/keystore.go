package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"overlay-core/pkg/config"
	"overlay-core/pkg/hdwallet"
	"overlay-core/pkg/keystore"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const minPasswordLen = 6

var keystoreCmd = &cobra.Command{
	Use:   "keystore",
	Short: "管理本地签名钱包",
}

var keystoreInitCmd = &cobra.Command{
	Use:   "init",
	Short: "生成新的助记词并加密保存",
	Run: func(cmd *cobra.Command, args []string) {
		outputFile, _ := cmd.Flags().GetString("output")
		if outputFile == "" {
			outputFile = config.Global.Wallet.KeystorePath
		}
		if _, err := os.Stat(outputFile); err == nil {
			fail("文件 %s 已存在。请先删除或指定其他文件名。", outputFile)
		}

		fmt.Println("正在初始化新钱包...")
		password, err := readPassword("输入密码: ")
		if err != nil {
			fail("读取密码失败: %v", err)
		}
		confirm, err := readPassword("确认密码: ")
		if err != nil {
			fail("读取密码失败: %v", err)
		}
		if password != confirm {
			fail("两次输入的密码不一致")
		}
		if len(password) < minPasswordLen {
			fail("密码长度至少需要 %d 位", minPasswordLen)
		}

		words, _ := cmd.Flags().GetInt("words")
		mnemonic, err := hdwallet.GenerateMnemonic(words / 3 * 32)
		if err != nil {
			fail("%v", err)
		}

		w, err := hdwallet.NewFromMnemonic(mnemonic, "")
		if err != nil {
			fail("%v", err)
		}
		addr, err := w.Address(config.Global.Wallet.DerivationPath)
		if err != nil {
			fail("派生地址失败: %v", err)
		}

		encrypted, err := keystore.EncryptMnemonic(mnemonic, password)
		if err != nil {
			fail("加密失败: %v", err)
		}
		encrypted.Address = addr.Hex()
		if err := encrypted.SaveToFile(outputFile); err != nil {
			fail("保存文件失败: %v", err)
		}

		fmt.Printf("\n✅ 钱包已初始化！\n")
		fmt.Printf("文件位置: %s\n", outputFile)
		fmt.Printf("地址: %s (%s)\n", addr.Hex(), config.Global.Wallet.DerivationPath)
		fmt.Println("\n⚠️  警告: 请务必记住您的密码！如果丢失密码，您将无法恢复钱包。")

		fmt.Print("\n是否需要现在显示助记词以便备份? (y/N): ")
		if yes(bufio.NewReader(os.Stdin)) {
			fmt.Println("\n---------------------------------------------------")
			fmt.Println(mnemonic)
			fmt.Println("---------------------------------------------------")
		}
	},
}

var keystoreAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "解密 keystore 并显示派生地址",
	Run: func(cmd *cobra.Command, args []string) {
		w := config.Global.Wallet
		keyJSON, err := keystore.LoadFromFile(w.KeystorePath)
		if err != nil {
			fail("加载 Keystore 失败: %v", err)
		}
		password, err := walletPassword()
		if err != nil {
			fail("读取密码失败: %v", err)
		}
		mnemonic, err := keystore.DecryptMnemonic(keyJSON, password)
		if err != nil {
			fail("解密失败 (密码错误?): %v", err)
		}
		hd, err := hdwallet.NewFromMnemonic(mnemonic, "")
		if err != nil {
			fail("%v", err)
		}
		addr, err := hd.Address(w.DerivationPath)
		if err != nil {
			fail("派生地址失败: %v", err)
		}
		fmt.Printf("%s (%s)\n", addr.Hex(), w.DerivationPath)
	},
}

func init() {
	keystoreInitCmd.Flags().StringP("output", "o", "", "输出的 Keystore 文件名 (默认 wallet.keystore_path)")
	keystoreInitCmd.Flags().Int("words", 12, "助记词长度 (12 或 24)")
	keystoreCmd.AddCommand(keystoreInitCmd, keystoreAddressCmd)
	rootCmd.AddCommand(keystoreCmd)
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// walletPassword 优先使用配置 (WALLET_PASSWORD)，否则交互输入
func walletPassword() (string, error) {
	if p := config.Global.Wallet.Password; p != "" {
		return p, nil
	}
	return readPassword("Keystore 密码: ")
}

func yes(r *bufio.Reader) bool {
	input, _ := r.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))
	return input == "y" || input == "yes"
}
