// Package ledger reads issued credentials from the credential contract's event log.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/internal/eth"
)

const credentialEventsABI = `[
	{"anonymous":false,"name":"CredentialIssued","type":"event","inputs":[
		{"indexed":true,"name":"tokenId","type":"uint256"},
		{"indexed":true,"name":"institution","type":"address"},
		{"indexed":true,"name":"student","type":"address"},
		{"indexed":false,"name":"title","type":"string"}]},
	{"anonymous":false,"name":"CredentialStatusChanged","type":"event","inputs":[
		{"indexed":true,"name":"tokenId","type":"uint256"},
		{"indexed":false,"name":"reason","type":"string"}]}
]`

const (
	eventIssued        = "CredentialIssued"
	eventStatusChanged = "CredentialStatusChanged"
)

// CredentialIndex folds issuance and status-change logs into credentials
type CredentialIndex struct {
	filterer  ethereum.LogFilterer
	contract  common.Address
	abi       abi.ABI
	fromBlock *big.Int
	logger    log.Logger
}

// NewCredentialIndex reads the logs of contract through filterer, e.g. an *ethclient.Client
func NewCredentialIndex(filterer ethereum.LogFilterer, contract common.Address) (*CredentialIndex, error) {
	parsed, err := abi.JSON(strings.NewReader(credentialEventsABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse credential ABI: %w", err)
	}
	return &CredentialIndex{
		filterer:  filterer,
		contract:  contract,
		abi:       parsed,
		fromBlock: big.NewInt(0),
		logger:    log.Root().New("component", "ledger"),
	}, nil
}

// WithFromBlock skips blocks before the contract deployment
func (i *CredentialIndex) WithFromBlock(block uint64) *CredentialIndex {
	i.fromBlock = new(big.Int).SetUint64(block)
	return i
}

// ByStudent lists credentials issued to student, non-revoked first
func (i *CredentialIndex) ByStudent(ctx context.Context, student string) ([]core.Credential, error) {
	topic, err := addressTopic(student)
	if err != nil {
		return nil, err
	}
	return i.credentials(ctx, [][]common.Hash{{i.abi.Events[eventIssued].ID}, nil, nil, {topic}})
}

// ByInstitution lists credentials issued by institution, non-revoked first
func (i *CredentialIndex) ByInstitution(ctx context.Context, institution string) ([]core.Credential, error) {
	topic, err := addressTopic(institution)
	if err != nil {
		return nil, err
	}
	return i.credentials(ctx, [][]common.Hash{{i.abi.Events[eventIssued].ID}, nil, {topic}})
}

func addressTopic(address string) (common.Hash, error) {
	if !eth.IsAddress(address) {
		return common.Hash{}, core.ErrInvalidAddress
	}
	return common.BytesToHash(common.HexToAddress(address).Bytes()), nil
}

func (i *CredentialIndex) credentials(ctx context.Context, issuedTopics [][]common.Hash) ([]core.Credential, error) {
	issued, err := i.filterer.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: i.fromBlock,
		Addresses: []common.Address{i.contract},
		Topics:    issuedTopics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s logs: %w", eventIssued, err)
	}

	changed, err := i.filterer.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: i.fromBlock,
		Addresses: []common.Address{i.contract},
		Topics:    [][]common.Hash{{i.abi.Events[eventStatusChanged].ID}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s logs: %w", eventStatusChanged, err)
	}

	revoked := make(map[string]bool, len(changed))
	for _, l := range changed {
		if len(l.Topics) < 2 {
			continue
		}
		revoked[l.Topics[1].Big().String()] = true
	}

	credentials := make([]core.Credential, 0, len(issued))
	for _, l := range issued {
		credential, err := i.decodeIssued(l)
		if err != nil {
			i.logger.Warn("Skipping malformed credential log", "tx", l.TxHash, "index", l.Index, "err", err)
			continue
		}
		credential.Revoked = revoked[credential.TokenID.String()]
		credentials = append(credentials, credential)
	}

	sort.SliceStable(credentials, func(a, b int) bool {
		return !credentials[a].Revoked && credentials[b].Revoked
	})
	return credentials, nil
}

func (i *CredentialIndex) decodeIssued(l types.Log) (core.Credential, error) {
	if len(l.Topics) != 4 {
		return core.Credential{}, fmt.Errorf("expected 4 topics, got %d", len(l.Topics))
	}
	values, err := i.abi.Unpack(eventIssued, l.Data)
	if err != nil {
		return core.Credential{}, fmt.Errorf("failed to unpack data: %w", err)
	}
	title, _ := values[0].(string)

	return core.Credential{
		TokenID:     l.Topics[1].Big(),
		Institution: common.BytesToAddress(l.Topics[2].Bytes()).Hex(),
		Student:     common.BytesToAddress(l.Topics[3].Bytes()).Hex(),
		Title:       title,
	}, nil
}
