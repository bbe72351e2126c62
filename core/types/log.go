package types

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Log is an event emitted by a contract during execution.
type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    []byte         `json:"data"`
}

type logJSON struct {
	Address common.Address `json:"address"`
	Data    hexutil.Bytes  `json:"data"`
	Topics  []common.Hash  `json:"topics"`
}

// MarshalJSON encodes the log with 0x-prefixed hex data and topics.
func (l *Log) MarshalJSON() ([]byte, error) {
	topics := l.Topics
	if topics == nil {
		topics = []common.Hash{}
	}
	return json.Marshal(logJSON{Address: l.Address, Data: l.Data, Topics: topics})
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (l *Log) UnmarshalJSON(input []byte) error {
	var dec logJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	l.Address, l.Data, l.Topics = dec.Address, dec.Data, dec.Topics
	return nil
}
