// internal/publisher/locators.go
package publisher

import (
	"github.com/xkilldash9x/scribe-cli/internal/browser/locator"
)

// Catalog holds the locator sets for every UI step of the workflow. It is
// plain data: a Publisher reads it but never modifies it, so one Catalog can
// serve concurrent runs.
type Catalog struct {
	// Authentication.
	LoginMenu    locator.Set `json:"login_menu" yaml:"login_menu"`
	EntryMode    locator.Set `json:"entry_mode" yaml:"entry_mode"`
	Identity     locator.Set `json:"identity" yaml:"identity"`
	Secret       locator.Set `json:"secret" yaml:"secret"`
	Agreement    locator.Set `json:"agreement" yaml:"agreement"`
	LoginSubmit  locator.Set `json:"login_submit" yaml:"login_submit"`
	Dashboard    locator.Set `json:"dashboard" yaml:"dashboard"`
	LoginFailure locator.Set `json:"login_failure" yaml:"login_failure"`

	// Discovery.
	WorkContainers locator.Set `json:"work_containers" yaml:"work_containers"`
	MyWorksNav     locator.Set `json:"my_works_nav" yaml:"my_works_nav"`
	// WorkIDAttrs are attributes list items carry the work ID in.
	WorkIDAttrs []string `json:"work_id_attrs" yaml:"work_id_attrs"`

	// Submission.
	NewChapter     locator.Set `json:"new_chapter" yaml:"new_chapter"`
	Title          locator.Set `json:"title" yaml:"title"`
	Body           locator.Set `json:"body" yaml:"body"`
	Publish        locator.Set `json:"publish" yaml:"publish"`
	ConfirmDialog  locator.Set `json:"confirm_dialog" yaml:"confirm_dialog"`
	PublishSuccess locator.Set `json:"publish_success" yaml:"publish_success"`
	PublishFailure locator.Set `json:"publish_failure" yaml:"publish_failure"`
}

// DefaultCatalog returns the locator sets for the writer platform's desktop
// and mobile renders. Candidates are ordered from most to least specific.
func DefaultCatalog() Catalog {
	return Catalog{
		LoginMenu: locator.NewSet("login menu",
			locator.CSS(".login-btn"),
			locator.Text("登录").On("button"),
			locator.Text("登录"),
			locator.Text("登录/注册"),
			locator.TextContains("Log in"),
		),
		EntryMode: locator.NewSet("password entry mode",
			locator.Text("密码登录"),
			locator.Text("账号密码登录"),
			locator.TextContains("密码登录"),
			locator.AttrContains("class", "password-login"),
			locator.TextContains("password"),
		),
		Identity: locator.NewSet("identity field",
			locator.Placeholder("手机号"),
			locator.Placeholder("邮箱"),
			locator.Placeholder("账号"),
			locator.CSS(`input[name="mobile"]`),
			locator.CSS(`input[name="account"]`),
			locator.InputType("tel"),
			locator.InputType("email"),
		),
		Secret: locator.NewSet("secret field",
			locator.Placeholder("密码"),
			locator.CSS(`input[name="password"]`),
			locator.InputType("password"),
		),
		Agreement: locator.NewSet("agreement checkbox",
			locator.CSS(`.agreement input[type="checkbox"]:not(:checked)`),
			locator.AttrContains("class", "agreement-checkbox"),
		),
		LoginSubmit: locator.NewSet("login submit",
			locator.CSS(`button[type="submit"]`),
			locator.Text("登录").On("button"),
			locator.Text("立即登录"),
			locator.AttrContains("class", "login-submit"),
			locator.TextContains("Sign in"),
		),
		Dashboard: locator.NewSet("dashboard indicator",
			locator.Text("作品管理"),
			locator.Text("工作台"),
			locator.AttrContains("class", "user-avatar"),
			locator.AttrContains("href", "/writer/works").On("a"),
			locator.TextContains("退出登录"),
		),
		LoginFailure: locator.NewSet("login error",
			locator.CSS(".login-error"),
			locator.CSS(".error-tip"),
			locator.AttrContains("class", "toast-error"),
			locator.TextContains("密码错误"),
			locator.TextContains("账号不存在"),
			locator.TextContains("验证码"),
		),

		WorkContainers: locator.NewSet("work list container",
			locator.CSS(".works-list"),
			locator.CSS(".book-list"),
			locator.AttrContains("class", "work-item"),
			locator.AttrContains("class", "book-card"),
			locator.CSS("table.works tbody"),
		),
		MyWorksNav: locator.NewSet("my works navigation",
			locator.Text("我的作品"),
			locator.Text("作品管理"),
			locator.AttrContains("href", "/writer/works").On("a"),
			locator.TextContains("My works"),
		),
		WorkIDAttrs: []string{"data-work-id", "data-book-id"},

		NewChapter: locator.NewSet("new chapter entry",
			locator.Text("新建章节"),
			locator.Text("创建章节"),
			locator.TextContains("新建章节"),
			locator.AttrContains("href", "/chapters/new").On("a"),
			locator.TextContains("New chapter"),
		),
		Title: locator.NewSet("title field",
			locator.Placeholder("章节标题"),
			locator.Placeholder("标题"),
			locator.CSS(`input[name="title"]`),
			locator.CSS(".chapter-title input"),
			locator.CSS(".chapter-title [contenteditable]"),
		),
		Body: locator.NewSet("body field",
			locator.CSS(".ProseMirror"),
			locator.CSS(`.editor [contenteditable="true"]`),
			locator.Placeholder("正文"),
			locator.CSS(`textarea[name="content"]`),
			locator.CSS(`[contenteditable="true"]`),
			locator.CSS("textarea"),
		),
		Publish: locator.NewSet("publish control",
			locator.Text("发布").On("button"),
			locator.Text("立即发布"),
			locator.Text("发布章节"),
			locator.AttrContains("class", "publish-btn"),
			locator.Text("下一步"),
			locator.TextContains("Publish"),
		),
		ConfirmDialog: locator.NewSet("publish confirmation",
			locator.Text("确认发布"),
			locator.CSS(".modal .confirm-btn"),
			locator.Text("确定").On("button"),
			locator.Text("确认").On("button"),
		),
		PublishSuccess: locator.NewSet("publish success indicator",
			locator.TextContains("发布成功"),
			locator.TextContains("提交成功"),
			locator.TextContains("已发布"),
			locator.AttrContains("class", "toast-success"),
			locator.TextContains("published"),
		),
		PublishFailure: locator.NewSet("publish failure indicator",
			locator.TextContains("发布失败"),
			locator.TextContains("敏感词"),
			locator.AttrContains("class", "toast-error"),
			locator.CSS(".publish-error"),
		),
	}
}
