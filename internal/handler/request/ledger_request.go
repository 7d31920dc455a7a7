package request

// ChainURI /api/v1/tx/:chain_id
type ChainURI struct {
	ChainID uint64 `uri:"chain_id" binding:"required"`
}

// TxURI /api/v1/tx/:chain_id/:hash
type TxURI struct {
	ChainID uint64 `uri:"chain_id" binding:"required"`
	Hash    string `uri:"hash" binding:"required"`
}

// PopupURI /api/v1/popups/:account[/:key]
type PopupURI struct {
	Account string `uri:"account" binding:"required"`
	Key     string `uri:"key"`
}
