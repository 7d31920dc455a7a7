package hdwallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// DefaultPath 以太坊 BIP-44 第一个地址
const DefaultPath = "m/44'/60'/0'/0/0"

var (
	ErrInvalidSeed     = errors.New("无效的种子")
	ErrInvalidMnemonic = errors.New("无效的助记词")
)

// Wallet BIP-32 分层确定性钱包
type Wallet struct {
	master *hdkeychain.ExtendedKey
}

// NewFromMnemonic passphrase 可为空
func NewFromMnemonic(mnemonic, passphrase string) (*Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	return NewFromSeed(bip39.NewSeed(mnemonic, passphrase))
}

func NewFromSeed(seed []byte) (*Wallet, error) {
	if len(seed) < hdkeychain.MinSeedBytes || len(seed) > hdkeychain.MaxSeedBytes {
		return nil, ErrInvalidSeed
	}
	// 以太坊派生与网络参数无关，MainNet 只影响 xprv 序列化前缀
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("生成主密钥失败: %w", err)
	}
	return &Wallet{master: master}, nil
}

// Derive 按路径派生私钥，支持 m/44'/60'/0'/0/0 或 m/44h/60h/0h/0/0
func (w *Wallet) Derive(path string) (*ecdsa.PrivateKey, error) {
	key, err := w.child(path)
	if err != nil {
		return nil, err
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return priv.ToECDSA(), nil
}

// PublicKey 路径对应的 secp256k1 公钥
func (w *Wallet) PublicKey(path string) (*btcec.PublicKey, error) {
	key, err := w.child(path)
	if err != nil {
		return nil, err
	}
	return key.ECPubKey()
}

// Address 路径对应的以太坊地址，只用公钥计算
func (w *Wallet) Address(path string) (common.Address, error) {
	pub, err := w.PublicKey(path)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub.ToECDSA()), nil
}

func (w *Wallet) child(path string) (*hdkeychain.ExtendedKey, error) {
	indexes, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	key := w.master
	for _, idx := range indexes {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("派生子密钥失败: %w", err)
		}
	}
	return key, nil
}

// ParsePath 把派生路径解析为索引列表
func ParsePath(path string) ([]uint32, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "m" {
		return nil, nil
	}
	path = strings.TrimPrefix(path, "m/")

	segments := strings.Split(path, "/")
	out := make([]uint32, 0, len(segments))
	for _, segment := range segments {
		hardened := false
		if strings.HasSuffix(segment, "'") || strings.HasSuffix(segment, "h") {
			hardened = true
			segment = segment[:len(segment)-1]
		}
		val, err := strconv.ParseUint(segment, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("无效的路径段 '%s': %w", segment, err)
		}
		idx := uint32(val)
		if hardened {
			idx += hdkeychain.HardenedKeyStart
		}
		out = append(out, idx)
	}
	return out, nil
}
