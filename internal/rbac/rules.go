package rbac

// Permission names. "<resource>:manage-any" lets a role change or delete
// resources created by someone else.
const (
	SheetCreate    = "sheet:create"
	SheetView      = "sheet:view"
	SheetManageAny = "sheet:manage-any"

	TaskCreate    = "task:create"
	TaskView      = "task:view"
	TaskManageAny = "task:manage-any"

	SolutionCreate    = "solution:create"
	SolutionView      = "solution:view"
	SolutionManageAny = "solution:manage-any"

	AnswerCreate    = "answer:create"
	AnswerView      = "answer:view"
	AnswerManageAny = "answer:manage-any"

	GradeView = "grade:view"

	UsersList      = "users:list"
	ChangePassword = "user:change_password"
)

var RolePermissions = map[string][]string{
	"user": {
		"sheet:create", "sheet:view",
		"task:create", "task:view",
		"solution:create", "solution:view",
		"answer:create", "answer:view",
		"grade:view",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
