package rbac

// 权限常量
const (
	PermissionReadProject   = "project:read"
	PermissionCreateProject = "project:create"
	PermissionEditResults   = "results_framework:update"
	PermissionToggleFeature = "feature:update"
	PermissionRecompute     = "progress:recompute"
	PermissionBlockNode     = "node:block"
	PermissionReplayOutbox  = "outbox:replay"
)

// 角色常量
const (
	RoleViewer = "viewer"
	RoleUser   = "user"
	RoleAdmin  = "admin"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleViewer: {
		PermissionReadProject,
	},
	RoleUser: {
		PermissionReadProject,
		PermissionCreateProject,
		PermissionEditResults,
		PermissionToggleFeature,
		PermissionRecompute,
		PermissionBlockNode,
	},
	RoleAdmin: {
		PermissionReadProject,
		PermissionCreateProject,
		PermissionEditResults,
		PermissionToggleFeature,
		PermissionRecompute,
		PermissionBlockNode,
		PermissionReplayOutbox,
	},
}

// NormalizeRole 未知或空角色按 viewer 处理
func NormalizeRole(role string) string {
	if _, ok := rolePermissions[role]; ok {
		return role
	}
	return RoleViewer
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role string, permission string) bool {
	for _, p := range rolePermissions[NormalizeRole(role)] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查权限（返回错误而不是布尔值，便于处理）
func CheckPermission(userID string, role string, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       NormalizeRole(role),
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     string
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions: " + e.Permission
}
