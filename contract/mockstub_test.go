package contract

import (
	"crypto/x509"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	pb "github.com/hyperledger/fabric-protos-go/peer"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// In-memory ledger stub for tests. Keys are kept sorted so partial
// composite key scans iterate in lexical order, matching a real peer's
// LevelDB behavior. Composite keys use the same \x00 framing as the
// Fabric runtime.

const (
	compositeKeyNamespace = "\x00"
	minUnicodeRuneValue   = 0
)

type mockStub struct {
	state  map[string][]byte
	events map[string][]byte
	txTime time.Time
	txID   string
}

func newMockStub() *mockStub {
	return &mockStub{
		state:  map[string][]byte{},
		events: map[string][]byte{},
		txTime: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		txID:   "tx-0",
	}
}

// tick advances the mock commit clock so successive operations get
// distinct timestamps.
func (ms *mockStub) tick() {
	ms.txTime = ms.txTime.Add(time.Second)
}

func (ms *mockStub) GetState(key string) ([]byte, error) {
	value, ok := ms.state[key]
	if !ok {
		return nil, nil
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	return copied, nil
}

func (ms *mockStub) PutState(key string, value []byte) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	ms.state[key] = copied
	return nil
}

func (ms *mockStub) DelState(key string) error {
	delete(ms.state, key)
	return nil
}

func (ms *mockStub) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	if objectType == "" {
		return "", errors.New("objectType cannot be empty")
	}
	key := compositeKeyNamespace + objectType + string(rune(minUnicodeRuneValue))
	for _, attr := range attributes {
		key += attr + string(rune(minUnicodeRuneValue))
	}
	return key, nil
}

func (ms *mockStub) SplitCompositeKey(compositeKey string) (string, []string, error) {
	componentIndex := 1
	var components []string
	for i := 1; i < len(compositeKey); i++ {
		if compositeKey[i] == byte(minUnicodeRuneValue) {
			components = append(components, compositeKey[componentIndex:i])
			componentIndex = i + 1
		}
	}
	if len(components) == 0 {
		return "", nil, fmt.Errorf("invalid composite key '%s'", compositeKey)
	}
	return components[0], components[1:], nil
}

func (ms *mockStub) GetStateByPartialCompositeKey(objectType string, keys []string) (shim.StateQueryIteratorInterface, error) {
	prefix, err := ms.CreateCompositeKey(objectType, keys)
	if err != nil {
		return nil, err
	}
	// The prefix built above has a trailing separator; a partial key
	// match is any key starting with it minus the final terminator when
	// attributes were supplied.
	matches := []*queryresult.KV{}
	sortedKeys := make([]string, 0, len(ms.state))
	for key := range ms.state {
		sortedKeys = append(sortedKeys, key)
	}
	sort.Strings(sortedKeys)
	for _, key := range sortedKeys {
		if strings.HasPrefix(key, prefix) {
			matches = append(matches, &queryresult.KV{Key: key, Value: ms.state[key]})
		}
	}
	return &mockStateIterator{kvs: matches}, nil
}

func (ms *mockStub) GetStateByRange(startKey, endKey string) (shim.StateQueryIteratorInterface, error) {
	matches := []*queryresult.KV{}
	sortedKeys := make([]string, 0, len(ms.state))
	for key := range ms.state {
		sortedKeys = append(sortedKeys, key)
	}
	sort.Strings(sortedKeys)
	for _, key := range sortedKeys {
		if (startKey == "" || key >= startKey) && (endKey == "" || key < endKey) {
			matches = append(matches, &queryresult.KV{Key: key, Value: ms.state[key]})
		}
	}
	return &mockStateIterator{kvs: matches}, nil
}

func (ms *mockStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(ms.txTime), nil
}

func (ms *mockStub) SetEvent(name string, payload []byte) error {
	if name == "" {
		return errors.New("event name cannot be empty")
	}
	ms.events[name] = payload
	return nil
}

func (ms *mockStub) GetTxID() string      { return ms.txID }
func (ms *mockStub) GetChannelID() string { return "buildtrace-channel" }

// Remaining ChaincodeStubInterface methods are not exercised by the
// registry and fail loudly if something starts depending on them.

func (ms *mockStub) GetArgs() [][]byte                           { return nil }
func (ms *mockStub) GetStringArgs() []string                     { return nil }
func (ms *mockStub) GetFunctionAndParameters() (string, []string) { return "", nil }
func (ms *mockStub) GetArgsSlice() ([]byte, error)               { return nil, errNotImplemented }
func (ms *mockStub) InvokeChaincode(string, [][]byte, string) pb.Response {
	return pb.Response{Status: 500, Message: "not implemented"}
}
func (ms *mockStub) SetStateValidationParameter(string, []byte) error { return errNotImplemented }
func (ms *mockStub) GetStateValidationParameter(string) ([]byte, error) {
	return nil, errNotImplemented
}
func (ms *mockStub) GetStateByRangeWithPagination(string, string, int32, string) (shim.StateQueryIteratorInterface, *pb.QueryResponseMetadata, error) {
	return nil, nil, errNotImplemented
}
func (ms *mockStub) GetStateByPartialCompositeKeyWithPagination(string, []string, int32, string) (shim.StateQueryIteratorInterface, *pb.QueryResponseMetadata, error) {
	return nil, nil, errNotImplemented
}
func (ms *mockStub) GetQueryResult(string) (shim.StateQueryIteratorInterface, error) {
	return nil, errNotImplemented
}
func (ms *mockStub) GetQueryResultWithPagination(string, int32, string) (shim.StateQueryIteratorInterface, *pb.QueryResponseMetadata, error) {
	return nil, nil, errNotImplemented
}
func (ms *mockStub) GetHistoryForKey(string) (shim.HistoryQueryIteratorInterface, error) {
	return nil, errNotImplemented
}
func (ms *mockStub) GetPrivateData(string, string) ([]byte, error)     { return nil, errNotImplemented }
func (ms *mockStub) GetPrivateDataHash(string, string) ([]byte, error) { return nil, errNotImplemented }
func (ms *mockStub) PutPrivateData(string, string, []byte) error       { return errNotImplemented }
func (ms *mockStub) DelPrivateData(string, string) error               { return errNotImplemented }
func (ms *mockStub) PurgePrivateData(string, string) error             { return errNotImplemented }
func (ms *mockStub) SetPrivateDataValidationParameter(string, string, []byte) error {
	return errNotImplemented
}
func (ms *mockStub) GetPrivateDataValidationParameter(string, string) ([]byte, error) {
	return nil, errNotImplemented
}
func (ms *mockStub) GetPrivateDataByRange(string, string, string) (shim.StateQueryIteratorInterface, error) {
	return nil, errNotImplemented
}
func (ms *mockStub) GetPrivateDataByPartialCompositeKey(string, string, []string) (shim.StateQueryIteratorInterface, error) {
	return nil, errNotImplemented
}
func (ms *mockStub) GetPrivateDataQueryResult(string, string) (shim.StateQueryIteratorInterface, error) {
	return nil, errNotImplemented
}
func (ms *mockStub) GetCreator() ([]byte, error)               { return nil, errNotImplemented }
func (ms *mockStub) GetTransient() (map[string][]byte, error)  { return nil, errNotImplemented }
func (ms *mockStub) GetBinding() ([]byte, error)               { return nil, errNotImplemented }
func (ms *mockStub) GetDecorations() map[string][]byte         { return nil }
func (ms *mockStub) GetSignedProposal() (*pb.SignedProposal, error) {
	return nil, errNotImplemented
}

var errNotImplemented = errors.New("not implemented in mock stub")

type mockStateIterator struct {
	kvs []*queryresult.KV
	pos int
}

func (it *mockStateIterator) HasNext() bool { return it.pos < len(it.kvs) }

func (it *mockStateIterator) Next() (*queryresult.KV, error) {
	if !it.HasNext() {
		return nil, errors.New("no more items")
	}
	kv := it.kvs[it.pos]
	it.pos++
	return kv, nil
}

func (it *mockStateIterator) Close() error { return nil }

// mockClientIdentity impersonates a transacting X.509 identity.
type mockClientIdentity struct {
	id    string
	mspID string
}

func (ci *mockClientIdentity) GetID() (string, error)    { return ci.id, nil }
func (ci *mockClientIdentity) GetMSPID() (string, error) { return ci.mspID, nil }
func (ci *mockClientIdentity) GetAttributeValue(string) (string, bool, error) {
	return "", false, nil
}
func (ci *mockClientIdentity) AssertAttributeValue(string, string) error {
	return errors.New("attribute not found")
}
func (ci *mockClientIdentity) GetX509Certificate() (*x509.Certificate, error) {
	return nil, errors.New("no certificate in mock identity")
}

// mockTxContext binds a shared mock ledger to a per-call identity.
type mockTxContext struct {
	stub     *mockStub
	identity *mockClientIdentity
}

func (ctx *mockTxContext) GetStub() shim.ChaincodeStubInterface  { return ctx.stub }
func (ctx *mockTxContext) GetClientIdentity() cid.ClientIdentity { return ctx.identity }
