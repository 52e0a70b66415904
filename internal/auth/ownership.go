package auth

import "fmt"

// IsOwner 按字符串形式比较调用者与记录所有者，兼容数值型 ID。
func IsOwner(actingID, ownerID any) bool {
	if actingID == nil || ownerID == nil {
		return false
	}
	acting := fmt.Sprint(actingID)
	return acting != "" && acting == fmt.Sprint(ownerID)
}
