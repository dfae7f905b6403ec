package tasks

// User-facing envelope messages. Part of the product's wire contract.
const (
	msgTaskNotFound     = "任務不存在"
	msgCrawlerNotFound  = "爬蟲不存在"
	msgHistoryNotFound  = "任務歷史不存在"
	msgHistoryMismatch  = "任務歷史不屬於此任務"
	msgValidationFailed = "資料驗證失敗"
	msgTaskCreated      = "任務建立成功"
	msgTaskUpdated      = "任務更新成功"
	msgTaskDeleted      = "任務刪除成功"
	msgStatusUpdated    = "任務狀態更新成功"
	msgRetryExceeded    = "重試次數已達上限"
	msgRetryReset       = "重試次數已重置"
	msgTaskNotRunning   = "任務未在執行中"
	msgTaskCancelled    = "任務已取消"
)
