package models

// InitializeRequest представляет тело запроса на создание хранилища.
// Владелец хранилища - подписант запроса.
type InitializeRequest struct {
	Asset Pubkey `json:"asset"`
}

// AmountRequest представляет тело запроса на пополнение или вывод.
// Owner может быть опущен - тогда используется подписант.
type AmountRequest struct {
	Owner        Pubkey `json:"owner"`
	Asset        Pubkey `json:"asset"`
	TokenAccount Pubkey `json:"token_account"` // Токен-аккаунт владельца
	Amount       uint64 `json:"amount"`
}

// CloseRequest представляет тело запроса на закрытие хранилища.
type CloseRequest struct {
	Owner        Pubkey `json:"owner"`
	Asset        Pubkey `json:"asset"`
	TokenAccount Pubkey `json:"token_account"`
}

// ErrorResponse представляет тело ответа с ошибкой.
type ErrorResponse struct {
	Error    string `json:"error"`
	TextCode string `json:"text_code"`
	Code     uint32 `json:"code,omitempty"` // Код ошибки программы хранилища
}

// AirdropRequest - запрос стенда на зачисление нативных средств подписанту.
type AirdropRequest struct {
	Lamports uint64 `json:"lamports"`
}

// CreateMintRequest - запрос стенда на создание актива. Полномочие выпуска - подписант.
type CreateMintRequest struct {
	Decimals uint8 `json:"decimals"`
}

// OpenHoldingRequest - запрос стенда на создание токен-аккаунта подписанта.
type OpenHoldingRequest struct {
	Mint Pubkey `json:"mint"`
}

// MintToRequest - запрос стенда на выпуск единиц актива.
type MintToRequest struct {
	Mint        Pubkey `json:"mint"`
	Destination Pubkey `json:"destination"`
	Amount      uint64 `json:"amount"`
}

// AddressResponse - ответ с адресом созданного аккаунта.
type AddressResponse struct {
	Address Pubkey `json:"address"`
}
