package runner

// User-facing result messages. These strings are part of the product's wire
// contract and surface verbatim in API envelopes and the UI.
const (
	msgNoLinks          = "沒有獲取到任何文章連結"
	msgNoContent        = "沒有獲取到任何文章內容，已保存連結"
	msgCancelled        = "任務已取消"
	msgCancelledPartial = "任務已取消，已保存部分資料"
	msgValidationFailed = "資料驗證失敗"
	msgCompleted        = "任務執行完成"
)
