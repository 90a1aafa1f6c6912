package archive

import (
	"path"
	"sort"
	"strings"

	"github.com/xkilldash9x/metagraph/api/schemas"
)

// suffixTable maps a filename extension (including the dot) to its metadata
// family. Lookups are exact and case-sensitive, matching how the platform
// names retrieved files.
var suffixTable = map[string]schemas.Family{
	".cls":       schemas.FamilyApexClass,
	".trigger":   schemas.FamilyApexTrigger,
	".page":      "ApexPage",
	".component": "ApexComponent",

	".object": schemas.FamilyCustomObject,
	".field":  "CustomField",

	".flow":                     schemas.FamilyFlow,
	".workflow":                 "WorkflowRule",
	".workflowAlert":            "WorkflowAlert",
	".workflowFieldUpdate":      "WorkflowFieldUpdate",
	".workflowTask":             "WorkflowTask",
	".workflowSend":             "WorkflowSend",
	".workflowOutboundMessage":  "WorkflowOutboundMessage",
	".workflowKnowledgePublish": "WorkflowKnowledgePublish",

	".layout":      schemas.FamilyLayout,
	".flexipage":   "FlexiPage",
	".tab":         "CustomTab",
	".app":         "CustomApplication",
	".weblink":     "CustomWebLink",
	".quickAction": "QuickAction",

	".validationRule": "ValidationRule",
	".sharingRules":   "SharingRules",
	".sharingSet":     "SharingSet",

	".permissionset":    "PermissionSet",
	".profile":          "Profile",
	".role":             "Role",
	".group":            "Group",
	".queue":            "Queue",
	".customPermission": "CustomPermission",

	".customMetadata": "CustomMetadata",
	".labels":         "CustomLabel",

	".site":                "CustomSite",
	".network":             "Network",
	".networkBranding":     "NetworkBranding",
	".networkMemberGroup":  "NetworkMemberGroup",
	".networkPageOverride": "NetworkPageOverride",
	".networkTabSet":       "NetworkTabSet",

	".report":     "Report",
	".reportType": "ReportType",
	".dashboard":  "Dashboard",
	".listView":   "ListView",

	".waveApplication": "WaveApplication",
	".waveDashboard":   "WaveDashboard",
	".waveDataflow":    "WaveDataflow",
	".waveDataset":     "WaveDataset",
	".waveLens":        "WaveLens",
	".waveRecipe":      "WaveRecipe",
	".waveSpoke":       "WaveSpoke",
	".waveXmd":         "WaveXmd",

	".globalValueSet":              "GlobalValueSet",
	".globalValueSetTranslation":   "GlobalValueSetTranslation",
	".standardValueSet":            "StandardValueSet",
	".standardValueSetTranslation": "StandardValueSetTranslation",

	".homePageComponent": "HomePageComponent",
	".homePageLayout":    "HomePageLayout",

	".namedCredential": "NamedCredential",
	".samlSsoConfig":   "SamlSsoConfig",

	".document": "Document",
	".resource": "StaticResource",
	".email":    "EmailTemplate",

	".territory":       "Territory",
	".territory2":      "Territory2",
	".territory2Model": "Territory2Model",
	".territory2Rule":  "Territory2Rule",
	".territory2Type":  "Territory2Type",

	".platformEventChannel":       "PlatformEventChannel",
	".platformEventChannelMember": "PlatformEventChannelMember",

	".serviceChannel":        "ServiceChannel",
	".servicePresenceStatus": "ServicePresenceStatus",
	".skill":                 "Skill",
	".queueRoutingConfig":    "QueueRoutingConfig",

	".pathAssistant":         "PathAssistant",
	".permissionSetGroup":    "PermissionSetGroup",
	".postTemplate":          "PostTemplate",
	".profilePasswordPolicy": "ProfilePasswordPolicy",
	".profileSessionSetting": "ProfileSessionSetting",
	".topicsForObjects":      "TopicsForObjects",
	".userCriteria":          "UserCriteria",
	".userProfileSearch":     "UserProfileSearch",

	".customObjectTranslation": "CustomObjectTranslation",
	".customPageWebLink":       "CustomPageWebLink",
	".customTabTranslation":    "CustomTabTranslation",
	".installedPackage":        "InstalledPackage",
	".synonymDictionary":       "SynonymDictionary",
	".siteDotCom":              "SiteDotCom",
}

// FamilyOf classifies an archive path by its final extension. Paths whose
// extension is not in the table are Unknown.
func FamilyOf(p string) schemas.Family {
	if f, ok := suffixTable[path.Ext(p)]; ok {
		return f
	}
	return schemas.FamilyUnknown
}

// CanonicalName returns the component name for an archive path: the base
// name with its family suffix removed. Unknown paths keep their base name.
func CanonicalName(p string) string {
	base := path.Base(p)
	ext := path.Ext(base)
	if _, ok := suffixTable[ext]; ok {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

// Suffixes returns every known suffix in sorted order.
func Suffixes() []string {
	out := make([]string, 0, len(suffixTable))
	for s := range suffixTable {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
