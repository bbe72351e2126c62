package types

// Header holds the block metadata handed to the interpreter.
type Header struct {
	Number     uint64 `json:"number"`
	Timestamp  uint64 `json:"timestamp"`
	GasLimit   uint64 `json:"gasLimit"`
	Difficulty uint64 `json:"difficulty"`
}

// Block is an ordered list of transactions executed on top of one state.
type Block struct {
	Header       *Header        `json:"header"`
	Transactions []*Transaction `json:"transactions"`
}

func (b *Block) Number() uint64 { return b.Header.Number }
